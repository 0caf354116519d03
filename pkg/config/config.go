package config

import "time"

// Config is the root configuration structure for the canary service.
// It contains all configuration sections.
type Config struct {
	// Server contains HTTP API server settings.
	Server ServerConfig `yaml:"server"`

	// Canary contains the promotion policy and scoring weights.
	Canary CanaryConfig `yaml:"canary"`

	// Storage selects where releases, evaluations and events are persisted.
	Storage StorageConfig `yaml:"storage"`

	// Recorder contains async persistence settings.
	Recorder RecorderConfig `yaml:"recorder"`

	// Monitor contains the background check and retention schedules.
	Monitor MonitorConfig `yaml:"monitor"`

	// Notify contains webhook notification settings.
	Notify NotifyConfig `yaml:"notify"`

	// Scoring contains scorer worker pool settings.
	Scoring ScoringConfig `yaml:"scoring"`

	// Telemetry contains logging and metrics settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Secrets configures where ${secret:name} references are resolved.
	Secrets SecretsConfig `yaml:"secrets"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the address the API server binds to (e.g., "127.0.0.1:8080").
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS serves the API over HTTPS when enabled.
	TLS TLSConfig `yaml:"tls"`

	// Auth requires API keys on /v1 routes when keys are configured.
	Auth AuthConfig `yaml:"auth"`
}

// TLSConfig contains API listener TLS settings.
type TLSConfig struct {
	// Enabled turns on HTTPS.
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM-encoded certificate path.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM-encoded private key path.
	KeyFile string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	MinVersion string `yaml:"min_version"`

	// ReloadInterval is how often the certificate files are checked for
	// changes. 0 disables reloading.
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// AuthConfig contains API key settings.
type AuthConfig struct {
	// Keys lists accepted API keys. An empty list disables authentication.
	Keys []APIKeyConfig `yaml:"keys"`
}

// APIKeyConfig is one accepted API key.
type APIKeyConfig struct {
	// Name identifies the caller in logs.
	Name string `yaml:"name"`

	// Key is the secret presented as "Authorization: Bearer <key>" or X-API-Key.
	Key string `yaml:"key"`

	// ReadOnly restricts the key to GET requests.
	ReadOnly bool `yaml:"read_only"`
}

// Enabled reports whether API keys are required.
func (c *AuthConfig) Enabled() bool {
	return len(c.Keys) > 0
}

// CanaryConfig contains the promotion policy applied by the controller.
// These fields can be hot-reloaded.
type CanaryConfig struct {
	// MinSamples is the number of canary evaluations required before a decision.
	MinSamples int64 `yaml:"min_samples"`

	// Threshold is the minimum composite mean a canary must reach.
	Threshold float64 `yaml:"threshold"`

	// Weights maps score categories to their composite weight. Must sum to 1.
	Weights map[string]float64 `yaml:"weights"`

	// AutoRollback enables automatic rollback on a Rollback recommendation.
	// Nil means the default (true).
	AutoRollback *bool `yaml:"auto_rollback"`

	// AutoPromote enables automatic promotion on a Promote recommendation.
	AutoPromote bool `yaml:"auto_promote"`

	// Seed makes traffic routing reproducible when set.
	Seed *uint64 `yaml:"seed"`
}

// AutoRollbackEnabled reports whether automatic rollback is on.
func (c *CanaryConfig) AutoRollbackEnabled() bool {
	if c.AutoRollback == nil {
		return DefaultCanaryAutoRollback
	}
	return *c.AutoRollback
}

// Storage backends.
const (
	StorageBackendMemory = "memory"
	StorageBackendSQLite = "sqlite"
)

// StorageConfig contains persistence backend settings.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific settings.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite backend settings.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`

	// Driver is "sqlite3" (cgo, mattn) or "sqlite" (pure Go, modernc).
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging. Nil means the default (true).
	WALMode *bool `yaml:"wal_mode"`

	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// WALEnabled reports whether WAL mode is on.
func (c *SQLiteConfig) WALEnabled() bool {
	if c.WALMode == nil {
		return DefaultSQLiteWALMode
	}
	return *c.WALMode
}

// RecorderConfig contains async recorder settings.
type RecorderConfig struct {
	// AsyncBuffer is the number of records buffered before new ones are dropped.
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds a single storage write.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// MonitorConfig contains background job schedules.
type MonitorConfig struct {
	// CheckSchedule is a cron expression for the automatic canary check.
	// Set to "off" to disable.
	CheckSchedule string `yaml:"check_schedule"`

	// RetentionDays is how long evaluation records are kept. 0 keeps them forever.
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is a cron expression for retention pruning.
	PruneSchedule string `yaml:"prune_schedule"`
}

// CheckEnabled reports whether the canary check job should run.
func (c *MonitorConfig) CheckEnabled() bool {
	return c.CheckSchedule != "" && c.CheckSchedule != ScheduleOff
}

// PruneEnabled reports whether the retention job should run.
func (c *MonitorConfig) PruneEnabled() bool {
	return c.RetentionDays > 0 && c.PruneSchedule != "" && c.PruneSchedule != ScheduleOff
}

// NotifyConfig contains webhook settings.
type NotifyConfig struct {
	// WebhookURL receives promote and rollback events. Empty disables notifications.
	WebhookURL string `yaml:"webhook_url"`

	// Timeout bounds a single webhook delivery.
	Timeout time.Duration `yaml:"timeout"`

	// RatePerMinute caps deliveries per minute.
	RatePerMinute int `yaml:"rate_per_minute"`
}

// ScoringConfig contains scorer execution settings.
type ScoringConfig struct {
	// Workers is the number of scorers run concurrently per request.
	Workers int `yaml:"workers"`

	// TaskTimeout bounds a single scorer call.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// MaxRetries is the number of attempts for a temporarily unavailable scorer.
	MaxRetries int `yaml:"max_retries"`
}

// TelemetryConfig contains observability settings.
type TelemetryConfig struct {
	// Logging contains structured logging settings.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics settings.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing settings.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format is the log output format: "json" or "text".
	Format string `yaml:"format"`

	// AddSource includes source file and line in log entries.
	AddSource bool `yaml:"add_source"`

	// RedactPatterns are extra patterns scrubbed from logged string values.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom log redaction pattern.
type RedactPattern struct {
	// Name identifies the pattern in validation errors.
	Name string `yaml:"name"`

	// Pattern is a Go regular expression.
	Pattern string `yaml:"pattern"`

	// Replacement is substituted for every match. It may use $1-style groups.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed.
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path where metrics are exposed (e.g., "/metrics").
	Path string `yaml:"path"`

	// Namespace is the Prometheus metric namespace.
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address (e.g., "localhost:4317").
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Sampler is the sampling strategy: "always", "never" or "ratio".
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces sampled with the "ratio" sampler.
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `yaml:"service_name"`

	// Timeout bounds a single export.
	Timeout time.Duration `yaml:"timeout"`
}

// SecretsConfig configures secret resolution. The values of
// server.auth.keys[].key and notify.webhook_url may contain ${secret:name}
// references, which are resolved from the secrets directory first and the
// environment second.
type SecretsConfig struct {
	// Dir holds one file per secret, mode 0600 or 0400. Empty disables
	// file-based secrets.
	Dir string `yaml:"dir"`

	// EnvPrefix namespaces secrets read from the environment.
	EnvPrefix string `yaml:"env_prefix"`
}
