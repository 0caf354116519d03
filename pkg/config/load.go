package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/promptcanary/pkg/security/secrets"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "PROMPTCANARY_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, resolves secret references, validates the
// configuration, and returns any errors. The configuration is not modified by
// environment variables; use LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults, resolves secret
// references and validates the result. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := resolveSecrets(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention PROMPTCANARY_SECTION_FIELD (e.g., PROMPTCANARY_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
// An empty path starts from the defaults.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Resolve ${secret:name} references
// 5. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if cfg, err = decode(data); err != nil {
			return nil, fmt.Errorf("failed to load configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := resolveSecrets(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// resolveSecrets replaces ${secret:name} references in the secret-bearing
// fields. Nothing is read when no field holds a reference.
func resolveSecrets(cfg *Config) error {
	fields := map[string]*string{"notify.webhook_url": &cfg.Notify.WebhookURL}
	for i := range cfg.Server.Auth.Keys {
		fields[fmt.Sprintf("server.auth.keys[%d].key", i)] = &cfg.Server.Auth.Keys[i].Key
	}

	var refs []string
	for field, val := range fields {
		if secrets.HasReference(*val) {
			refs = append(refs, field)
		}
	}
	if len(refs) == 0 {
		return nil
	}
	sort.Strings(refs)

	var providers []secrets.Provider
	if cfg.Secrets.Dir != "" {
		files, err := secrets.NewFileProvider(cfg.Secrets.Dir)
		if err != nil {
			return ValidationError{Errors: []FieldError{{Field: "secrets.dir", Message: err.Error()}}}
		}
		providers = append(providers, files)
	}
	providers = append(providers, secrets.NewEnvProvider(cfg.Secrets.EnvPrefix))
	resolver := secrets.NewResolver(providers...)

	var errs []FieldError
	for _, field := range refs {
		val, err := resolver.Resolve(context.Background(), *fields[field])
		if err != nil {
			errs = append(errs, FieldError{Field: field, Message: err.Error()})
			continue
		}
		*fields[field] = val
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Malformed values are collected into a ValidationError rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	e := envReader{}

	// Server overrides
	e.str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	e.duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	e.duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	e.duration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	e.duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	e.bool("SERVER_TLS_ENABLED", &cfg.Server.TLS.Enabled)
	e.str("SERVER_TLS_CERT_FILE", &cfg.Server.TLS.CertFile)
	e.str("SERVER_TLS_KEY_FILE", &cfg.Server.TLS.KeyFile)
	e.str("SERVER_TLS_MIN_VERSION", &cfg.Server.TLS.MinVersion)
	e.duration("SERVER_TLS_RELOAD_INTERVAL", &cfg.Server.TLS.ReloadInterval)

	// Secrets overrides
	e.str("SECRETS_DIR", &cfg.Secrets.Dir)
	e.str("SECRETS_ENV_PREFIX", &cfg.Secrets.EnvPrefix)
	// A single key from the environment is appended to the file's keys.
	if key := os.Getenv(EnvPrefix + "SERVER_API_KEY"); key != "" {
		cfg.Server.Auth.Keys = append(cfg.Server.Auth.Keys, APIKeyConfig{Name: "env", Key: key})
	}

	// Canary overrides
	e.int64("CANARY_MIN_SAMPLES", &cfg.Canary.MinSamples)
	e.float("CANARY_THRESHOLD", &cfg.Canary.Threshold)
	e.optionalBool("CANARY_AUTO_ROLLBACK", &cfg.Canary.AutoRollback)
	e.bool("CANARY_AUTO_PROMOTE", &cfg.Canary.AutoPromote)
	if val := os.Getenv(EnvPrefix + "CANARY_SEED"); val != "" {
		if seed, err := strconv.ParseUint(val, 10, 64); err == nil {
			cfg.Canary.Seed = &seed
		} else {
			e.fail("CANARY_SEED", val)
		}
	}
	for category := range cfg.Canary.Weights {
		w := cfg.Canary.Weights[category]
		e.float("CANARY_WEIGHTS_"+strings.ToUpper(category), &w)
		cfg.Canary.Weights[category] = w
	}

	// Storage overrides
	e.str("STORAGE_BACKEND", &cfg.Storage.Backend)
	e.str("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	e.str("STORAGE_SQLITE_DRIVER", &cfg.Storage.SQLite.Driver)
	e.optionalBool("STORAGE_SQLITE_WAL_MODE", &cfg.Storage.SQLite.WALMode)
	e.duration("STORAGE_SQLITE_BUSY_TIMEOUT", &cfg.Storage.SQLite.BusyTimeout)

	// Recorder overrides
	e.int("RECORDER_ASYNC_BUFFER", &cfg.Recorder.AsyncBuffer)
	e.duration("RECORDER_WRITE_TIMEOUT", &cfg.Recorder.WriteTimeout)

	// Monitor overrides
	e.str("MONITOR_CHECK_SCHEDULE", &cfg.Monitor.CheckSchedule)
	e.int("MONITOR_RETENTION_DAYS", &cfg.Monitor.RetentionDays)
	e.str("MONITOR_PRUNE_SCHEDULE", &cfg.Monitor.PruneSchedule)

	// Notify overrides
	e.str("NOTIFY_WEBHOOK_URL", &cfg.Notify.WebhookURL)
	e.duration("NOTIFY_TIMEOUT", &cfg.Notify.Timeout)
	e.int("NOTIFY_RATE_PER_MINUTE", &cfg.Notify.RatePerMinute)

	// Scoring overrides
	e.int("SCORING_WORKERS", &cfg.Scoring.Workers)
	e.duration("SCORING_TASK_TIMEOUT", &cfg.Scoring.TaskTimeout)
	e.int("SCORING_MAX_RETRIES", &cfg.Scoring.MaxRetries)

	// Telemetry overrides
	e.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	e.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	e.bool("TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	e.bool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	e.str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	e.str("TELEMETRY_METRICS_NAMESPACE", &cfg.Telemetry.Metrics.Namespace)
	e.bool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	e.str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	e.bool("TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)
	e.str("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	e.float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)

	if len(e.errs) > 0 {
		return ValidationError{Errors: e.errs}
	}
	return nil
}

// envReader reads PROMPTCANARY_* variables into typed fields.
type envReader struct {
	errs []FieldError
}

func (e *envReader) lookup(key string) (string, bool) {
	val := os.Getenv(EnvPrefix + key)
	return val, val != ""
}

func (e *envReader) fail(key, val string) {
	e.errs = append(e.errs, FieldError{
		Field:   EnvPrefix + key,
		Message: fmt.Sprintf("cannot parse %q", val),
	})
}

func (e *envReader) str(key string, dst *string) {
	if val, ok := e.lookup(key); ok {
		*dst = val
	}
}

func (e *envReader) int(key string, dst *int) {
	if val, ok := e.lookup(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		} else {
			e.fail(key, val)
		}
	}
}

func (e *envReader) int64(key string, dst *int64) {
	if val, ok := e.lookup(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = i
		} else {
			e.fail(key, val)
		}
	}
}

func (e *envReader) float(key string, dst *float64) {
	if val, ok := e.lookup(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		} else {
			e.fail(key, val)
		}
	}
}

func (e *envReader) bool(key string, dst *bool) {
	if val, ok := e.lookup(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		} else {
			e.fail(key, val)
		}
	}
}

func (e *envReader) optionalBool(key string, dst **bool) {
	if val, ok := e.lookup(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = &b
		} else {
			e.fail(key, val)
		}
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if val, ok := e.lookup(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		} else {
			e.fail(key, val)
		}
	}
}
