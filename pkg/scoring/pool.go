package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

// PoolConfig configures the bounded worker pool.
type PoolConfig struct {
	// Workers caps how many scorers run at once.
	// Default: 4
	Workers int

	// TaskTimeout bounds a single scorer run, retries included.
	// Default: 30 seconds
	TaskTimeout time.Duration
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:     4,
		TaskTimeout: 30 * time.Second,
	}
}

// Task pairs a scorer with the request it evaluates.
type Task struct {
	Scorer  Scorer
	Request Request
}

// Pool runs scoring tasks concurrently with a fixed upper bound.
// Results come back in task order, one per task, whether it succeeded or not.
type Pool struct {
	cfg    PoolConfig
	logger *slog.Logger
}

// NewPool creates a pool.
func NewPool(cfg PoolConfig) *Pool {
	def := DefaultPoolConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	return &Pool{
		cfg:    cfg,
		logger: slog.Default().With("component", "scoring.pool"),
	}
}

// Run executes every task and returns their results in input order.
// A failing or timed-out task yields a Result with Err set; it never cancels
// its siblings.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i, task := range tasks {
		g.Go(func() error {
			results[i] = p.runOne(gCtx, task)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Evaluate scores one request with every scorer and returns the per-category
// scores alongside the raw results.
func (p *Pool) Evaluate(ctx context.Context, req Request, scorers []Scorer) (map[string]float64, []Result) {
	tasks := make([]Task, len(scorers))
	for i, s := range scorers {
		tasks[i] = Task{Scorer: s, Request: req}
	}
	results := p.Run(ctx, tasks)
	return Collect(results), results
}

func (p *Pool) runOne(ctx context.Context, task Task) (res Result) {
	res = Result{
		Scorer:   task.Scorer.Name(),
		Category: task.Scorer.Category(),
		Attempts: 1,
	}

	defer func() {
		if r := recover(); r != nil {
			res.Err = &ScoreError{Scorer: res.Scorer, Cause: fmt.Errorf("panic: %v", r)}
			p.logger.Error("scorer panicked", "scorer", res.Scorer, "panic", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Err = &ScoreError{Scorer: res.Scorer, Cause: err}
		return res
	}

	tctx, cancel := context.WithTimeout(ctx, p.cfg.TaskTimeout)
	defer cancel()

	var (
		score float64
		err   error
	)
	if rs, ok := task.Scorer.(*Retrying); ok {
		score, res.Attempts, err = rs.ScoreWithAttempts(tctx, task.Request)
	} else {
		score, err = task.Scorer.Score(tctx, task.Request)
	}

	switch {
	case err != nil:
		res.Err = &ScoreError{Scorer: res.Scorer, Cause: err}
		p.logger.Warn("scorer failed",
			"scorer", res.Scorer,
			"release_id", task.Request.ReleaseID,
			"attempts", res.Attempts,
			"error", err,
		)
	case math.IsNaN(score) || score < 0 || score > 1:
		res.Err = &ScoreError{Scorer: res.Scorer, Cause: fmt.Errorf("score %v outside [0,1]", score)}
	default:
		res.Score = score
	}
	return res
}
