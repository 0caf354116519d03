package config

import (
	"maps"
	"time"
)

// Default configuration values.
// These values are applied when configuration fields are not explicitly set.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultTLSMinVersion   = "1.3"

	// Secrets defaults
	DefaultSecretsEnvPrefix = "PROMPTCANARY_SECRET_"

	// Canary policy defaults
	DefaultCanaryMinSamples   int64 = 30
	DefaultCanaryThreshold          = 0.55
	DefaultCanaryAutoRollback       = true
	DefaultCanaryAutoPromote        = false

	// Storage defaults
	DefaultStorageBackend     = StorageBackendMemory
	DefaultSQLitePath         = "data/canary.db"
	DefaultSQLiteDriver       = "sqlite3"
	DefaultSQLiteMaxOpenConns = 10
	DefaultSQLiteMaxIdleConns = 5
	DefaultSQLiteWALMode      = true
	DefaultSQLiteBusyTimeout  = 5 * time.Second

	// Recorder defaults
	DefaultRecorderAsyncBuffer  = 1000
	DefaultRecorderWriteTimeout = 5 * time.Second

	// Monitor defaults
	DefaultMonitorCheckSchedule = "@every 1m"
	DefaultMonitorRetentionDays = 90
	DefaultMonitorPruneSchedule = "0 3 * * *"

	// ScheduleOff disables a scheduled job.
	ScheduleOff = "off"

	// Notify defaults
	DefaultNotifyTimeout       = 5 * time.Second
	DefaultNotifyRatePerMinute = 60

	// Scoring defaults
	DefaultScoringWorkers     = 4
	DefaultScoringTaskTimeout = 30 * time.Second
	DefaultScoringMaxRetries  = 3

	// Telemetry defaults
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "promptcanary"
	DefaultTracingEndpoint  = "localhost:4317"
	DefaultTracingSampler   = "ratio"
	DefaultTracingRatio     = 0.1
	DefaultTracingService   = "promptcanary"
	DefaultTracingTimeout   = 10 * time.Second
)

// DefaultCanaryWeights returns the default category weights.
func DefaultCanaryWeights() map[string]float64 {
	return map[string]float64{
		"heuristic":      0.20,
		"ai_evaluation":  0.40,
		"ml_metrics":     0.30,
		"human_feedback": 0.10,
	}
}

// ApplyDefaults applies default values to any configuration fields that are not set.
// It modifies the provided Config in place. Optional booleans are left nil and
// resolved through their accessor methods.
func ApplyDefaults(cfg *Config) {
	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}

	// Canary defaults
	if cfg.Canary.MinSamples == 0 {
		cfg.Canary.MinSamples = DefaultCanaryMinSamples
	}
	if cfg.Canary.Threshold == 0 {
		cfg.Canary.Threshold = DefaultCanaryThreshold
	}
	if len(cfg.Canary.Weights) == 0 {
		cfg.Canary.Weights = DefaultCanaryWeights()
	} else {
		cfg.Canary.Weights = maps.Clone(cfg.Canary.Weights)
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.Driver == "" {
		cfg.Storage.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.Storage.SQLite.MaxOpenConns == 0 {
		cfg.Storage.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Storage.SQLite.MaxIdleConns == 0 {
		cfg.Storage.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	// Recorder defaults
	if cfg.Recorder.AsyncBuffer == 0 {
		cfg.Recorder.AsyncBuffer = DefaultRecorderAsyncBuffer
	}
	if cfg.Recorder.WriteTimeout == 0 {
		cfg.Recorder.WriteTimeout = DefaultRecorderWriteTimeout
	}

	// Monitor defaults
	if cfg.Monitor.CheckSchedule == "" {
		cfg.Monitor.CheckSchedule = DefaultMonitorCheckSchedule
	}
	if cfg.Monitor.RetentionDays == 0 {
		cfg.Monitor.RetentionDays = DefaultMonitorRetentionDays
	}
	if cfg.Monitor.PruneSchedule == "" {
		cfg.Monitor.PruneSchedule = DefaultMonitorPruneSchedule
	}

	// Notify defaults
	if cfg.Notify.Timeout == 0 {
		cfg.Notify.Timeout = DefaultNotifyTimeout
	}
	if cfg.Notify.RatePerMinute == 0 {
		cfg.Notify.RatePerMinute = DefaultNotifyRatePerMinute
	}

	// Scoring defaults
	if cfg.Scoring.Workers == 0 {
		cfg.Scoring.Workers = DefaultScoringWorkers
	}
	if cfg.Scoring.TaskTimeout == 0 {
		cfg.Scoring.TaskTimeout = DefaultScoringTaskTimeout
	}
	if cfg.Scoring.MaxRetries == 0 {
		cfg.Scoring.MaxRetries = DefaultScoringMaxRetries
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Telemetry.Metrics.Enabled = true
	ApplyDefaults(cfg)
	return cfg
}
