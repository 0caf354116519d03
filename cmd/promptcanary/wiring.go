package main

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/canary/recorder"
	"mercator-hq/promptcanary/pkg/canary/storage"
	"mercator-hq/promptcanary/pkg/cli"
	"mercator-hq/promptcanary/pkg/config"
	"mercator-hq/promptcanary/pkg/monitor"
	"mercator-hq/promptcanary/pkg/notify"
	"mercator-hq/promptcanary/pkg/scoring"
	"mercator-hq/promptcanary/pkg/telemetry/logging"
)

// loadConfig initializes the global configuration from --config.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	return config.GetConfig(), nil
}

func loggingConfig(cfg *config.LoggingConfig) logging.Config {
	patterns := make([]logging.RedactPattern, 0, len(cfg.RedactPatterns))
	for _, p := range cfg.RedactPatterns {
		patterns = append(patterns, logging.RedactPattern{
			Name:        p.Name,
			Pattern:     p.Pattern,
			Replacement: p.Replacement,
		})
	}
	return logging.Config{
		Level:          cfg.Level,
		Format:         cfg.Format,
		AddSource:      cfg.AddSource,
		RedactPatterns: patterns,
	}
}

// policyFromConfig maps the canary section onto the promotion policy.
func policyFromConfig(cfg *config.CanaryConfig) canary.Policy {
	return canary.Policy{
		MinSamples:   cfg.MinSamples,
		Threshold:    cfg.Threshold,
		AutoRollback: cfg.AutoRollbackEnabled(),
		AutoPromote:  cfg.AutoPromote,
	}
}

// randSource returns a seeded source when canary.seed is set.
func randSource(cfg *config.CanaryConfig) canary.RandSource {
	if cfg.Seed != nil {
		return canary.NewSeededSource(*cfg.Seed)
	}
	return canary.NewRandomSource()
}

// applyCanaryConfig pushes a reloaded canary section into a running
// controller. Weights are applied before the policy so a rejected weight map
// leaves both unchanged.
func applyCanaryConfig(ctrl *canary.Controller, cfg *config.CanaryConfig) error {
	if err := ctrl.SetWeights(cfg.Weights); err != nil {
		return fmt.Errorf("apply weights: %w", err)
	}
	if err := ctrl.SetPolicy(policyFromConfig(cfg)); err != nil {
		return fmt.Errorf("apply policy: %w", err)
	}
	return nil
}

// openStorage opens the configured storage backend.
func openStorage(cfg *config.StorageConfig) (storage.Storage, error) {
	switch cfg.Backend {
	case config.StorageBackendSQLite:
		return storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			Driver:       cfg.SQLite.Driver,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALEnabled(),
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
	case config.StorageBackendMemory, "":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

func recorderConfig(cfg *config.RecorderConfig) *recorder.Config {
	return &recorder.Config{
		AsyncBuffer:  cfg.AsyncBuffer,
		WriteTimeout: cfg.WriteTimeout,
	}
}

func notifyConfig(cfg *config.NotifyConfig) notify.Config {
	return notify.Config{
		URL:           cfg.WebhookURL,
		Timeout:       cfg.Timeout,
		RatePerMinute: cfg.RatePerMinute,
	}
}

// monitorConfig translates the "off" schedule keyword into the empty
// schedule the scheduler treats as disabled.
func monitorConfig(cfg *config.MonitorConfig) *monitor.Config {
	out := &monitor.Config{RetentionDays: cfg.RetentionDays}
	if cfg.CheckEnabled() {
		out.CheckSchedule = cfg.CheckSchedule
	}
	if cfg.PruneEnabled() {
		out.PruneSchedule = cfg.PruneSchedule
	}
	return out
}

// scorers returns the scorers run by POST /score, each wrapped in the retry
// policy.
func scorers(cfg *config.ScoringConfig) []scoring.Scorer {
	retry := scoring.RetryConfig{MaxTries: uint(cfg.MaxRetries)}
	return []scoring.Scorer{
		scoring.Retry(scoring.HeuristicScorer{}, retry),
	}
}

func poolConfig(cfg *config.ScoringConfig) scoring.PoolConfig {
	return scoring.PoolConfig{Workers: cfg.Workers, TaskTimeout: cfg.TaskTimeout}
}

// restoreController rebuilds controller state from storage. Persisted
// statistics buckets carry history the prune job has already deleted.
func restoreController(ctx context.Context, ctrl *canary.Controller, store storage.Storage, logger *slog.Logger) error {
	data, err := storage.Load(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to load stored state: %w", err)
	}
	if len(data.Releases) == 0 {
		logger.Debug("no stored releases to restore")
		return nil
	}
	return ctrl.Restore(data)
}
