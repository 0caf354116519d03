package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/promptcanary/pkg/canary"
)

type sink struct {
	mu       sync.Mutex
	payloads []Payload
	status   int
	delay    time.Duration
}

func (s *sink) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var p Payload
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&p)) {
			s.mu.Lock()
			s.payloads = append(s.payloads, p)
			s.mu.Unlock()
		}
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		if s.status != 0 {
			w.WriteHeader(s.status)
		}
	}
}

func (s *sink) received() []Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Payload(nil), s.payloads...)
}

func rollbackEvent() *canary.TransitionEvent {
	return &canary.TransitionEvent{
		ReleaseID:     "r1",
		PromptID:      "p1",
		Kind:          canary.EventRolledBack,
		FromVersionID: "v2",
		ToVersionID:   "v1",
		Trigger:       canary.TriggerAuto,
		Reason:        "auto-rollback: canary mean 0.400 < threshold 0.55 after 30 samples",
		CanaryMean:    0.4,
		ActiveMean:    0.6,
		At:            time.Now().UTC(),
	}
}

func TestWebhook_Delivers(t *testing.T) {
	s := &sink{}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	w := NewWebhook(Config{URL: srv.URL})
	w.Notify(context.Background(), rollbackEvent())
	w.Wait()

	got := s.received()
	require.Len(t, got, 1)
	assert.Equal(t, "rolled_back", got[0].Type)
	assert.Equal(t, "r1", got[0].ReleaseID)
	assert.Equal(t, "p1", got[0].PromptID)
	assert.Equal(t, "auto", got[0].Trigger)
	assert.InDelta(t, 0.4, got[0].CanaryMean, 1e-12)
	assert.InDelta(t, 0.6, got[0].ActiveMean, 1e-12)
	assert.Contains(t, got[0].Message, "canary v2 rolled back for prompt p1")
	assert.Contains(t, got[0].Message, "auto-rollback")
}

func TestWebhook_SkipsNonTerminalEvents(t *testing.T) {
	s := &sink{}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	w := NewWebhook(Config{URL: srv.URL})
	w.Notify(context.Background(), &canary.TransitionEvent{ReleaseID: "r1", Kind: canary.EventCanaryStarted})
	w.Notify(context.Background(), &canary.TransitionEvent{ReleaseID: "r1", Kind: canary.EventPercentSet})
	w.Wait()

	assert.Empty(t, s.received())
}

func TestWebhook_FailuresAreSwallowed(t *testing.T) {
	s := &sink{status: http.StatusInternalServerError}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	w := NewWebhook(Config{URL: srv.URL})
	w.Notify(context.Background(), rollbackEvent())
	w.Wait()
	assert.Len(t, s.received(), 1)

	// Unreachable endpoint.
	w = NewWebhook(Config{URL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond})
	w.Notify(context.Background(), rollbackEvent())
	w.Wait()
}

func TestWebhook_NotifyDoesNotBlock(t *testing.T) {
	s := &sink{delay: 300 * time.Millisecond}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	w := NewWebhook(Config{URL: srv.URL, Timeout: time.Second})
	start := time.Now()
	w.Notify(context.Background(), rollbackEvent())
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	w.Wait()
}

func TestWebhook_RateLimited(t *testing.T) {
	s := &sink{}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	w := NewWebhook(Config{URL: srv.URL, RatePerMinute: 2})
	for i := 0; i < 5; i++ {
		w.Notify(context.Background(), rollbackEvent())
	}
	w.Wait()

	assert.Len(t, s.received(), 2)
}

func TestWebhook_Disabled(t *testing.T) {
	w := NewWebhook(Config{})
	w.Notify(context.Background(), rollbackEvent())
	w.Wait()
}

func TestNewPayload_Promoted(t *testing.T) {
	p := NewPayload(&canary.TransitionEvent{
		ReleaseID:   "r1",
		PromptID:    "p1",
		Kind:        canary.EventPromoted,
		ToVersionID: "v2",
		Trigger:     canary.TriggerOverride,
	})
	assert.Equal(t, "promoted", p.Type)
	assert.Equal(t, "version v2 promoted for prompt p1", p.Message)
	assert.Equal(t, "override", p.Trigger)
}
