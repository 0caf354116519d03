package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/promptcanary/pkg/canary"
)

func constant(name, category string, v float64) Func {
	return Func{
		ScorerName:    name,
		ScoreCategory: category,
		Fn:            func(context.Context, Request) (float64, error) { return v, nil },
	}
}

func TestHeuristicScorer_Breakdown(t *testing.T) {
	h := HeuristicScorer{}

	tests := []struct {
		name   string
		prompt string
		want   HeuristicBreakdown
		mean   float64
	}{
		{
			name:   "optimal length and clear",
			prompt: strings.TrimSpace(strings.Repeat("word ", 40)),
			want:   HeuristicBreakdown{Length: 1, Clarity: 1, Toxicity: 1},
			mean:   1,
		},
		{
			name:   "short and vague",
			prompt: "maybe do it",
			want:   HeuristicBreakdown{Length: 0.383, Clarity: 0.85, Toxicity: 1},
			mean:   0.744,
		},
		{
			name:   "far too long",
			prompt: strings.Repeat("word ", 120),
			want:   HeuristicBreakdown{Length: 0, Clarity: 1, Toxicity: 1},
			mean:   0.667,
		},
		{
			name:   "vague terms are case insensitive and counted",
			prompt: "Roughly sort of Kind Of approximately maybe MAYBE something else entirely here",
			want:   HeuristicBreakdown{Length: 0.533, Clarity: 0.1, Toxicity: 1},
			mean:   0.544,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.Breakdown(tt.prompt)
			assert.InDelta(t, tt.want.Length, got.Length, 1e-9)
			assert.InDelta(t, tt.want.Clarity, got.Clarity, 1e-9)
			assert.InDelta(t, tt.want.Toxicity, got.Toxicity, 1e-9)
			assert.InDelta(t, tt.mean, got.Mean(), 1e-9)
		})
	}
}

func TestHeuristicScorer_Score(t *testing.T) {
	h := HeuristicScorer{}
	assert.Equal(t, canary.CategoryHeuristic, h.Category())

	_, err := h.Score(context.Background(), Request{Prompt: "  "})
	require.Error(t, err)

	v, err := h.Score(context.Background(), Request{Prompt: "maybe do it"})
	require.NoError(t, err)
	assert.InDelta(t, 0.744, v, 1e-9)
}

func TestFeedbackScore(t *testing.T) {
	tests := []struct {
		rating  int
		want    float64
		wantErr bool
	}{
		{rating: 1, want: 0},
		{rating: 3, want: 0.5},
		{rating: 5, want: 1},
		{rating: 0, wantErr: true},
		{rating: 6, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("rating_%d", tt.rating), func(t *testing.T) {
			got, err := FeedbackScore(tt.rating)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCollect(t *testing.T) {
	results := []Result{
		{Scorer: "a", Category: canary.CategoryAIEvaluation, Score: 0.8},
		{Scorer: "b", Category: canary.CategoryAIEvaluation, Score: 0.6},
		{Scorer: "c", Category: canary.CategoryMLMetrics, Err: errors.New("boom")},
		{Scorer: "d", Category: canary.CategoryHeuristic, Score: 0.5},
	}

	got := Collect(results)
	assert.Len(t, got, 2)
	assert.InDelta(t, 0.7, got[canary.CategoryAIEvaluation], 1e-12)
	assert.InDelta(t, 0.5, got[canary.CategoryHeuristic], 1e-12)
	_, ok := got[canary.CategoryMLMetrics]
	assert.False(t, ok)
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

	t.Run("transient then success", func(t *testing.T) {
		var calls atomic.Int32
		s := Retry(Func{ScorerName: "flaky", ScoreCategory: "x", Fn: func(context.Context, Request) (float64, error) {
			if calls.Add(1) < 3 {
				return 0, fmt.Errorf("upstream 503: %w", ErrUnavailable)
			}
			return 0.9, nil
		}}, cfg)

		v, attempts, err := s.ScoreWithAttempts(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, 0.9, v)
		assert.Equal(t, 3, attempts)
	})

	t.Run("gives up after max tries", func(t *testing.T) {
		var calls atomic.Int32
		s := Retry(Func{ScorerName: "down", ScoreCategory: "x", Fn: func(context.Context, Request) (float64, error) {
			calls.Add(1)
			return 0, ErrUnavailable
		}}, cfg)

		_, err := s.Score(context.Background(), Request{})
		require.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		bad := errors.New("malformed response")
		var calls atomic.Int32
		s := Retry(Func{ScorerName: "bad", ScoreCategory: "x", Fn: func(context.Context, Request) (float64, error) {
			calls.Add(1)
			return 0, bad
		}}, cfg)

		_, err := s.Score(context.Background(), Request{})
		require.ErrorIs(t, err, bad)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestPool_RunPreservesOrder(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 3, TaskTimeout: time.Second})

	var tasks []Task
	for i := 0; i < 20; i++ {
		delay := time.Duration(20-i) * time.Millisecond
		score := float64(i) / 20
		tasks = append(tasks, Task{Scorer: Func{
			ScorerName:    fmt.Sprintf("s%d", i),
			ScoreCategory: canary.CategoryMLMetrics,
			Fn: func(ctx context.Context, _ Request) (float64, error) {
				time.Sleep(delay)
				return score, nil
			},
		}})
	}

	results := pool.Run(context.Background(), tasks)
	require.Len(t, results, 20)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, fmt.Sprintf("s%d", i), r.Scorer)
		assert.InDelta(t, float64(i)/20, r.Score, 1e-12)
	}
}

func TestPool_Bounded(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 2, TaskTimeout: time.Second})

	var running, peak atomic.Int32
	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = Task{Scorer: Func{ScorerName: "s", ScoreCategory: "x", Fn: func(context.Context, Request) (float64, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return 0.5, nil
		}}}
	}

	pool.Run(context.Background(), tasks)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_FailuresAreIsolated(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 4, TaskTimeout: 20 * time.Millisecond})

	scorers := []Scorer{
		constant("ok", canary.CategoryAIEvaluation, 0.8),
		Func{ScorerName: "slow", ScoreCategory: canary.CategoryMLMetrics, Fn: func(ctx context.Context, _ Request) (float64, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}},
		Func{ScorerName: "panics", ScoreCategory: canary.CategoryHumanFeedback, Fn: func(context.Context, Request) (float64, error) {
			panic("scorer bug")
		}},
		constant("out-of-range", canary.CategoryHumanFeedback, 1.5),
		HeuristicScorer{},
	}

	scores, results := pool.Evaluate(context.Background(), Request{Prompt: "maybe do it"}, scorers)
	require.Len(t, results, 5)

	assert.True(t, results[0].OK())
	require.Error(t, results[1].Err)
	assert.ErrorIs(t, results[1].Err, context.DeadlineExceeded)
	require.Error(t, results[2].Err)
	assert.Contains(t, results[2].Err.Error(), "panic")
	require.Error(t, results[3].Err)
	assert.True(t, results[4].OK())

	assert.Equal(t, map[string]float64{
		canary.CategoryAIEvaluation: 0.8,
		canary.CategoryHeuristic:    0.744,
	}, scores)
}

func TestPool_CancelledContext(t *testing.T) {
	pool := NewPool(PoolConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := pool.Run(ctx, []Task{{Scorer: constant("a", "x", 0.5)}})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}
