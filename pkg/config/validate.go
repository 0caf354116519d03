package config

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

// weightSumTolerance absorbs float rounding in YAML-provided weights.
const weightSumTolerance = 1e-9

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "canary.threshold").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, ValidateCanary(&cfg.Canary)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateRecorder(&cfg.Recorder)...)
	errs = append(errs, validateMonitor(&cfg.Monitor)...)
	errs = append(errs, validateNotify(&cfg.Notify)...)
	errs = append(errs, validateScoring(&cfg.Scoring)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}

	for field, d := range map[string]int64{
		"server.read_timeout":     int64(cfg.ReadTimeout),
		"server.write_timeout":    int64(cfg.WriteTimeout),
		"server.idle_timeout":     int64(cfg.IdleTimeout),
		"server.shutdown_timeout": int64(cfg.ShutdownTimeout),
	} {
		if d < 0 {
			errs = append(errs, FieldError{Field: field, Message: "timeout must be positive"})
		}
	}
	sortFieldErrors(errs)

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.cert_file", Message: "required when TLS is enabled"})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.key_file", Message: "required when TLS is enabled"})
		}
	}
	if v := cfg.TLS.MinVersion; v != "" && v != "1.2" && v != "1.3" {
		errs = append(errs, FieldError{
			Field:   "server.tls.min_version",
			Message: fmt.Sprintf("must be 1.2 or 1.3, got %q", v),
		})
	}
	if cfg.TLS.ReloadInterval < 0 {
		errs = append(errs, FieldError{Field: "server.tls.reload_interval", Message: "must not be negative"})
	}

	names := make(map[string]bool, len(cfg.Auth.Keys))
	for i, k := range cfg.Auth.Keys {
		field := fmt.Sprintf("server.auth.keys[%d]", i)
		if k.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "name is required"})
		} else if names[k.Name] {
			errs = append(errs, FieldError{Field: field + ".name", Message: fmt.Sprintf("duplicate key name %q", k.Name)})
		}
		names[k.Name] = true
		if k.Key == "" {
			errs = append(errs, FieldError{Field: field + ".key", Message: "key is required"})
		}
	}

	return errs
}

// ValidateCanary validates the promotion policy section. It is exported so
// hot reload can check a candidate policy before applying it.
func ValidateCanary(cfg *CanaryConfig) []FieldError {
	var errs []FieldError

	if cfg.MinSamples < 1 {
		errs = append(errs, FieldError{
			Field:   "canary.min_samples",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.MinSamples),
		})
	}

	if math.IsNaN(cfg.Threshold) || cfg.Threshold < 0 || cfg.Threshold > 1 {
		errs = append(errs, FieldError{
			Field:   "canary.threshold",
			Message: fmt.Sprintf("must be between 0 and 1, got %v", cfg.Threshold),
		})
	}

	if len(cfg.Weights) == 0 {
		errs = append(errs, FieldError{
			Field:   "canary.weights",
			Message: "at least one category weight is required",
		})
		return errs
	}

	names := make([]string, 0, len(cfg.Weights))
	for name := range cfg.Weights {
		names = append(names, name)
	}
	sort.Strings(names)

	sum := 0.0
	for _, name := range names {
		w := cfg.Weights[name]
		if name == "" {
			errs = append(errs, FieldError{Field: "canary.weights", Message: "category name cannot be empty"})
			continue
		}
		if math.IsNaN(w) || w < 0 {
			errs = append(errs, FieldError{
				Field:   "canary.weights." + name,
				Message: fmt.Sprintf("must be >= 0, got %v", w),
			})
			continue
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		errs = append(errs, FieldError{
			Field:   "canary.weights",
			Message: fmt.Sprintf("must sum to 1.0, got %.6f", sum),
		})
	}

	return errs
}

// validateStorage validates storage configuration.
func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case StorageBackendMemory:
	case StorageBackendSQLite:
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.path",
				Message: "path is required for sqlite backend",
			})
		}
		if cfg.SQLite.Driver != "sqlite3" && cfg.SQLite.Driver != "sqlite" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("must be one of: sqlite3, sqlite (got %q)", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 0 || cfg.SQLite.MaxIdleConns < 0 {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite",
				Message: "connection limits must be non-negative",
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.busy_timeout",
				Message: "busy timeout must be positive",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("must be one of: memory, sqlite (got %q)", cfg.Backend),
		})
	}

	return errs
}

// validateRecorder validates recorder configuration.
func validateRecorder(cfg *RecorderConfig) []FieldError {
	var errs []FieldError

	if cfg.AsyncBuffer < 1 {
		errs = append(errs, FieldError{
			Field:   "recorder.async_buffer",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.AsyncBuffer),
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "recorder.write_timeout",
			Message: "write timeout must be positive",
		})
	}

	return errs
}

// validateMonitor validates the cron schedules.
func validateMonitor(cfg *MonitorConfig) []FieldError {
	var errs []FieldError

	if cfg.CheckEnabled() {
		if _, err := cron.ParseStandard(cfg.CheckSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "monitor.check_schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.CheckSchedule, err),
			})
		}
	}

	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{
			Field:   "monitor.retention_days",
			Message: "retention days must be non-negative",
		})
	}

	if cfg.PruneSchedule != "" && cfg.PruneSchedule != ScheduleOff {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "monitor.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.PruneSchedule, err),
			})
		}
	}

	return errs
}

// validateNotify validates webhook configuration.
func validateNotify(cfg *NotifyConfig) []FieldError {
	var errs []FieldError

	if cfg.WebhookURL != "" {
		u, err := url.Parse(cfg.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   "notify.webhook_url",
				Message: fmt.Sprintf("must be an absolute http(s) URL (got %q)", cfg.WebhookURL),
			})
		}
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "notify.timeout",
			Message: "timeout must be positive",
		})
	}
	if cfg.RatePerMinute < 0 {
		errs = append(errs, FieldError{
			Field:   "notify.rate_per_minute",
			Message: "rate must be non-negative",
		})
	}

	return errs
}

// validateScoring validates scorer pool configuration.
func validateScoring(cfg *ScoringConfig) []FieldError {
	var errs []FieldError

	if cfg.Workers < 1 {
		errs = append(errs, FieldError{
			Field:   "scoring.workers",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Workers),
		})
	}
	if cfg.TaskTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "scoring.task_timeout",
			Message: "task timeout must be positive",
		})
	}
	if cfg.MaxRetries < 1 {
		errs = append(errs, FieldError{
			Field:   "scoring.max_retries",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.MaxRetries),
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level),
		})
	}

	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("must be one of: json, text (got %q)", cfg.Logging.Format),
		})
	}

	for i, p := range cfg.Logging.RedactPatterns {
		field := fmt.Sprintf("telemetry.logging.redact_patterns[%d]", i)
		if p.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "name is required"})
		}
		if _, err := regexp.Compile(p.Pattern); err != nil || p.Pattern == "" {
			msg := "pattern is required"
			if err != nil {
				msg = fmt.Sprintf("invalid regular expression: %v", err)
			}
			errs = append(errs, FieldError{Field: field + ".pattern", Message: msg})
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
		switch cfg.Tracing.Sampler {
		case "always", "never":
		case "ratio":
			if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
				errs = append(errs, FieldError{
					Field:   "telemetry.tracing.sample_ratio",
					Message: fmt.Sprintf("must be between 0 and 1, got %v", cfg.Tracing.SampleRatio),
				})
			}
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("must be one of: always, never, ratio (got %q)", cfg.Tracing.Sampler),
			})
		}
	}

	return errs
}

func sortFieldErrors(errs []FieldError) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
}
