package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mercator-hq/promptcanary/pkg/canary"
)

// Config configures the webhook notifier.
type Config struct {
	// URL receives a POST for every promotion and rollback. Empty disables
	// delivery.
	URL string

	// Timeout bounds a single delivery.
	// Default: 5 seconds
	Timeout time.Duration

	// RatePerMinute caps deliveries; events over the cap are dropped.
	// Default: 60
	RatePerMinute int
}

// DefaultConfig returns the default notifier configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Second,
		RatePerMinute: 60,
	}
}

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Type       string    `json:"type"`
	ReleaseID  string    `json:"release_id"`
	PromptID   string    `json:"prompt_id"`
	Message    string    `json:"message"`
	Trigger    string    `json:"trigger"`
	CanaryMean float64   `json:"canary_mean"`
	ActiveMean float64   `json:"active_mean"`
	At         time.Time `json:"at"`
}

// Webhook implements canary.Notifier with best-effort HTTP delivery.
// Notify returns immediately; delivery happens on a separate goroutine and
// failures are logged, never returned.
type Webhook struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(cfg Config) *Webhook {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = def.RatePerMinute
	}

	perSecond := rate.Limit(float64(cfg.RatePerMinute) / 60)
	return &Webhook{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(perSecond, cfg.RatePerMinute),
		logger:  slog.Default().With("component", "notify.webhook"),
	}
}

// Notify delivers the event asynchronously. Only promotions and rollbacks
// are sent.
func (w *Webhook) Notify(ctx context.Context, evt *canary.TransitionEvent) {
	if w.cfg.URL == "" {
		return
	}
	if evt.Kind != canary.EventPromoted && evt.Kind != canary.EventRolledBack {
		return
	}
	if !w.limiter.Allow() {
		w.logger.Warn("webhook rate limit exceeded, dropping notification",
			"release_id", evt.ReleaseID,
			"kind", evt.Kind,
		)
		return
	}

	payload := NewPayload(evt)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		// Detached from the caller: the request that triggered the
		// transition may finish before delivery does.
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.Timeout)
		defer cancel()

		if err := w.send(dctx, payload); err != nil {
			w.logger.Warn("webhook delivery failed",
				"release_id", payload.ReleaseID,
				"type", payload.Type,
				"error", err,
			)
			return
		}
		w.logger.Debug("webhook delivered", "release_id", payload.ReleaseID, "type", payload.Type)
	}()
}

// Wait blocks until in-flight deliveries finish.
func (w *Webhook) Wait() {
	w.wg.Wait()
}

func (w *Webhook) send(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "promptcanary-webhook/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// NewPayload builds the webhook body for a transition event.
func NewPayload(evt *canary.TransitionEvent) Payload {
	p := Payload{
		Type:       string(evt.Kind),
		ReleaseID:  evt.ReleaseID,
		PromptID:   evt.PromptID,
		Trigger:    string(evt.Trigger),
		CanaryMean: evt.CanaryMean,
		ActiveMean: evt.ActiveMean,
		At:         evt.At,
	}

	switch evt.Kind {
	case canary.EventPromoted:
		p.Message = fmt.Sprintf("version %s promoted for prompt %s", evt.ToVersionID, evt.PromptID)
	case canary.EventRolledBack:
		p.Message = fmt.Sprintf("canary %s rolled back for prompt %s", evt.FromVersionID, evt.PromptID)
	}
	if evt.Reason != "" {
		p.Message += ": " + evt.Reason
	}
	return p
}
