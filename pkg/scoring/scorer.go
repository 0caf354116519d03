package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrUnavailable marks a transient scorer failure (timeouts, upstream 5xx).
// Only errors matching it are retried.
var ErrUnavailable = errors.New("scorer unavailable")

// Request is the input handed to every scorer.
type Request struct {
	ReleaseID string
	VersionID string
	Prompt    string
	Response  string
}

// Scorer produces one category score in [0,1] for a request.
//
// Implementations must be safe for concurrent use.
type Scorer interface {
	// Name identifies the scorer in results and logs.
	Name() string

	// Category is the aggregation category the score contributes to.
	Category() string

	// Score evaluates the request.
	Score(ctx context.Context, req Request) (float64, error)
}

// Result is the explicit outcome of one scorer run. Failed results carry Err
// and never contribute a value.
type Result struct {
	Scorer   string  `json:"scorer"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
	Attempts int     `json:"attempts"`
	Err      error   `json:"-"`
}

// OK reports whether the scorer produced a usable value.
func (r Result) OK() bool {
	return r.Err == nil
}

// ScoreError wraps the failure of a named scorer.
type ScoreError struct {
	Scorer string
	Cause  error
}

// Error implements the error interface.
func (e *ScoreError) Error() string {
	return fmt.Sprintf("scorer %s: %v", e.Scorer, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ScoreError) Unwrap() error {
	return e.Cause
}

// Func adapts a function to the Scorer interface.
type Func struct {
	ScorerName    string
	ScoreCategory string
	Fn            func(ctx context.Context, req Request) (float64, error)
}

// Name implements Scorer.
func (f Func) Name() string { return f.ScorerName }

// Category implements Scorer.
func (f Func) Category() string { return f.ScoreCategory }

// Score implements Scorer.
func (f Func) Score(ctx context.Context, req Request) (float64, error) {
	return f.Fn(ctx, req)
}

// Collect folds successful results into per-category scores ready for the
// aggregator. Several scorers in one category are averaged. Failed results
// are skipped so the aggregator renormalises over what is present.
func Collect(results []Result) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range results {
		if !r.OK() || math.IsNaN(r.Score) {
			continue
		}
		sums[r.Category] += r.Score
		counts[r.Category]++
	}

	out := make(map[string]float64, len(sums))
	for cat, sum := range sums {
		out[cat] = clamp01(sum / float64(counts[cat]))
	}
	return out
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
