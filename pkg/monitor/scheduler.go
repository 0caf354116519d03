package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/promptcanary/pkg/canary"
)

// Config contains configuration for the monitor.
type Config struct {
	// CheckSchedule is a cron expression for the canary check.
	// Example: "@every 1m". Empty disables the check job.
	CheckSchedule string

	// RetentionDays is the number of days to retain evaluation records.
	// 0 keeps them forever.
	RetentionDays int

	// PruneSchedule is a cron expression for retention pruning.
	// Example: "0 3 * * *" (daily at 3 AM). Empty disables pruning.
	PruneSchedule string
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() *Config {
	return &Config{
		CheckSchedule: "@every 1m",
		RetentionDays: 90,
		PruneSchedule: "0 3 * * *",
	}
}

// Checker evaluates every canary release and applies automatic actions.
type Checker interface {
	CheckAll(ctx context.Context) []*canary.CheckResult
}

// Pruner deletes evaluation records older than a cutoff.
type Pruner interface {
	PruneEvaluations(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler runs the periodic canary check and retention pruning on cron
// schedules.
type Scheduler struct {
	checker Checker
	pruner  Pruner
	config  *Config
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
	now     func() time.Time
}

// NewScheduler creates a scheduler. pruner may be nil when no durable
// storage is configured.
func NewScheduler(checker Checker, pruner Pruner, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		checker: checker,
		pruner:  pruner,
		config:  config,
		cron:    cron.New(),
		logger:  slog.Default().With("component", "monitor.scheduler"),
		now:     time.Now,
	}
}

// Start registers the configured jobs and starts the cron runner. Jobs with
// an empty schedule are skipped. The scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	jobs := 0
	if s.config.CheckSchedule != "" {
		if _, err := cron.ParseStandard(s.config.CheckSchedule); err != nil {
			return fmt.Errorf("invalid check schedule %q: %w", s.config.CheckSchedule, err)
		}
		if _, err := s.cron.AddFunc(s.config.CheckSchedule, func() { s.RunCheck(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule canary check: %w", err)
		}
		jobs++
	}

	if s.config.PruneSchedule != "" && s.config.RetentionDays > 0 && s.pruner != nil {
		if _, err := cron.ParseStandard(s.config.PruneSchedule); err != nil {
			return fmt.Errorf("invalid prune schedule %q: %w", s.config.PruneSchedule, err)
		}
		if _, err := s.cron.AddFunc(s.config.PruneSchedule, func() { s.RunPrune(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule pruning: %w", err)
		}
		jobs++
	}

	if jobs == 0 {
		s.logger.Info("no monitor jobs configured, skipping scheduler")
		return nil
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("monitor scheduler started",
		"check_schedule", s.config.CheckSchedule,
		"prune_schedule", s.config.PruneSchedule,
		"retention_days", s.config.RetentionDays,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunCheck executes one canary check cycle.
func (s *Scheduler) RunCheck(ctx context.Context) []*canary.CheckResult {
	results := s.checker.CheckAll(ctx)

	acted := 0
	for _, res := range results {
		if res.Action != canary.ActionNone {
			acted++
			s.logger.Info("automatic canary action applied",
				"release_id", res.ReleaseID,
				"action", res.Action,
				"reason", res.Reason,
			)
		}
	}
	s.logger.Debug("canary check completed", "checked", len(results), "acted", acted)
	return results
}

// RunPrune deletes evaluation records older than the retention period.
func (s *Scheduler) RunPrune(ctx context.Context) (int64, error) {
	if s.pruner == nil || s.config.RetentionDays <= 0 {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	deleted, err := s.pruner.PruneEvaluations(ctx, cutoff)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return 0, err
	}

	if deleted > 0 {
		s.logger.Info("scheduled pruning completed",
			"deleted_count", deleted,
			"cutoff", cutoff,
		)
	} else {
		s.logger.Debug("scheduled pruning completed, no records deleted")
	}
	return deleted, nil
}

// Stop stops the scheduler and waits for any running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("monitor scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRuns returns the next scheduled time of every registered job.
func (s *Scheduler) NextRuns() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []time.Time
	for _, e := range s.cron.Entries() {
		out = append(out, e.Next)
	}
	return out
}
