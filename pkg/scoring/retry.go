package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig controls the retry wrapper.
type RetryConfig struct {
	// MaxTries is the total number of attempts, including the first.
	// Default: 3
	MaxTries uint

	// InitialInterval is the first backoff delay.
	// Default: 200ms
	InitialInterval time.Duration

	// MaxInterval caps a single backoff delay.
	// Default: 2s
	MaxInterval time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxTries:        3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Retrying wraps a Scorer and retries ErrUnavailable failures with
// exponential backoff. Any other error fails immediately.
type Retrying struct {
	inner Scorer
	cfg   RetryConfig
}

// Retry wraps s with the given retry policy.
func Retry(s Scorer, cfg RetryConfig) *Retrying {
	def := DefaultRetryConfig()
	if cfg.MaxTries == 0 {
		cfg.MaxTries = def.MaxTries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	return &Retrying{inner: s, cfg: cfg}
}

// Name implements Scorer.
func (r *Retrying) Name() string { return r.inner.Name() }

// Category implements Scorer.
func (r *Retrying) Category() string { return r.inner.Category() }

// Score implements Scorer.
func (r *Retrying) Score(ctx context.Context, req Request) (float64, error) {
	score, _, err := r.ScoreWithAttempts(ctx, req)
	return score, err
}

// ScoreWithAttempts is Score that also reports how many attempts were made.
func (r *Retrying) ScoreWithAttempts(ctx context.Context, req Request) (float64, int, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.InitialInterval
	eb.MaxInterval = r.cfg.MaxInterval

	attempts := 0
	score, err := backoff.Retry(ctx, func() (float64, error) {
		attempts++
		v, err := r.inner.Score(ctx, req)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, ErrUnavailable) {
			return 0, err
		}
		return 0, backoff.Permanent(err)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(r.cfg.MaxTries),
	)
	return score, attempts, err
}
