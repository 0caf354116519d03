package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "promptcanary.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:9090"
  read_timeout: "60s"

canary:
  min_samples: 50
  threshold: 0.7
  auto_rollback: false
  auto_promote: true
  seed: 42
  weights:
    heuristic: 0.5
    human_feedback: 0.5

storage:
  backend: "sqlite"
  sqlite:
    path: "./canary-test.db"
    driver: "sqlite"

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:9090", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("expected read timeout %v, got %v", 60*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("expected default write timeout, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Canary.MinSamples != 50 || cfg.Canary.Threshold != 0.7 {
		t.Errorf("unexpected canary policy: %+v", cfg.Canary)
	}
	if cfg.Canary.AutoRollbackEnabled() {
		t.Error("expected auto_rollback to be disabled")
	}
	if !cfg.Canary.AutoPromote {
		t.Error("expected auto_promote to be enabled")
	}
	if cfg.Canary.Seed == nil || *cfg.Canary.Seed != 42 {
		t.Errorf("expected seed 42, got %v", cfg.Canary.Seed)
	}
	if len(cfg.Canary.Weights) != 2 {
		t.Errorf("expected 2 weights, got %v", cfg.Canary.Weights)
	}
	if cfg.Storage.SQLite.Driver != "sqlite" {
		t.Errorf("expected driver sqlite, got %q", cfg.Storage.SQLite.Driver)
	}
	if !cfg.Storage.SQLite.WALEnabled() {
		t.Error("expected WAL mode to default to enabled")
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level %q, got %q", "debug", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Canary.MinSamples != DefaultCanaryMinSamples {
		t.Errorf("expected min samples %d, got %d", DefaultCanaryMinSamples, cfg.Canary.MinSamples)
	}
	if !cfg.Canary.AutoRollbackEnabled() {
		t.Error("expected auto rollback to default to enabled")
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.Storage.Backend)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			content: "server: [unclosed",
			wantErr: "failed to parse",
		},
		{
			name:    "unknown field",
			content: "server:\n  listen_adress: \":80\"\n",
			wantErr: "listen_adress",
		},
		{
			name:    "weights do not sum to one",
			content: "canary:\n  weights:\n    heuristic: 0.5\n    ml_metrics: 0.2\n",
			wantErr: "must sum to 1.0",
		},
		{
			name:    "threshold out of range",
			content: "canary:\n  threshold: 1.5\n",
			wantErr: "canary.threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:8080"
canary:
  threshold: 0.6
`)

	t.Setenv("PROMPTCANARY_SERVER_LISTEN_ADDRESS", "0.0.0.0:7000")
	t.Setenv("PROMPTCANARY_CANARY_THRESHOLD", "0.75")
	t.Setenv("PROMPTCANARY_CANARY_AUTO_ROLLBACK", "false")
	t.Setenv("PROMPTCANARY_CANARY_SEED", "7")
	t.Setenv("PROMPTCANARY_CANARY_WEIGHTS_HEURISTIC", "0.1")
	t.Setenv("PROMPTCANARY_CANARY_WEIGHTS_AI_EVALUATION", "0.5")
	t.Setenv("PROMPTCANARY_MONITOR_CHECK_SCHEDULE", "off")
	t.Setenv("PROMPTCANARY_TELEMETRY_LOGGING_LEVEL", "warn")
	t.Setenv("PROMPTCANARY_SERVER_API_KEY", "pc-env-key")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7000" {
		t.Errorf("expected env override for listen address, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Canary.Threshold != 0.75 {
		t.Errorf("expected threshold 0.75, got %v", cfg.Canary.Threshold)
	}
	if cfg.Canary.AutoRollbackEnabled() {
		t.Error("expected auto rollback disabled by env")
	}
	if cfg.Canary.Seed == nil || *cfg.Canary.Seed != 7 {
		t.Errorf("expected seed 7, got %v", cfg.Canary.Seed)
	}
	if cfg.Canary.Weights["heuristic"] != 0.1 || cfg.Canary.Weights["ai_evaluation"] != 0.5 {
		t.Errorf("unexpected weights: %v", cfg.Canary.Weights)
	}
	if cfg.Monitor.CheckEnabled() {
		t.Error("expected check job disabled")
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("expected logging level warn, got %q", cfg.Telemetry.Logging.Level)
	}
	if !cfg.Server.Auth.Enabled() || cfg.Server.Auth.Keys[0].Key != "pc-env-key" {
		t.Errorf("expected env API key, got %+v", cfg.Server.Auth.Keys)
	}
	if cfg.Server.TLS.MinVersion != DefaultTLSMinVersion {
		t.Errorf("expected default TLS min version, got %q", cfg.Server.TLS.MinVersion)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("PROMPTCANARY_STORAGE_BACKEND", "sqlite")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("expected sqlite backend, got %q", cfg.Storage.Backend)
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics enabled by default")
	}
}

func TestLoadConfigWithEnvOverrides_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"unparseable duration", "PROMPTCANARY_SERVER_READ_TIMEOUT", "soon", "PROMPTCANARY_SERVER_READ_TIMEOUT"},
		{"unparseable bool", "PROMPTCANARY_CANARY_AUTO_PROMOTE", "maybe", "PROMPTCANARY_CANARY_AUTO_PROMOTE"},
		{"invalid backend", "PROMPTCANARY_STORAGE_BACKEND", "postgres", "storage.backend"},
		{"weights no longer sum", "PROMPTCANARY_CANARY_WEIGHTS_ML_METRICS", "0.9", "must sum to 1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfigWithEnvOverrides("")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadConfig_SecretReferences(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "deploy-key"), []byte("pc_from_file\n"), 0600); err != nil {
		t.Fatalf("failed to write secret: %v", err)
	}
	t.Setenv("PROMPTCANARY_SECRET_WEBHOOK_TOKEN", "s3cr3t")

	path := writeConfig(t, `
server:
  auth:
    keys:
      - name: deploy
        key: "${secret:deploy-key}"
      - name: ci
        key: "${secret:ci-key}"
notify:
  webhook_url: "https://hooks.example.com/canary?token=${secret:webhook-token}"
secrets:
  dir: "`+dir+`"
`)
	t.Setenv("PROMPTCANARY_SECRET_CI_KEY", "pc_from_env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if got := cfg.Server.Auth.Keys[0].Key; got != "pc_from_file" {
		t.Errorf("expected key from file, got %q", got)
	}
	if got := cfg.Server.Auth.Keys[1].Key; got != "pc_from_env" {
		t.Errorf("expected key from env, got %q", got)
	}
	if got := cfg.Notify.WebhookURL; got != "https://hooks.example.com/canary?token=s3cr3t" {
		t.Errorf("unexpected webhook url %q", got)
	}
	if cfg.Secrets.EnvPrefix != DefaultSecretsEnvPrefix {
		t.Errorf("expected default env prefix, got %q", cfg.Secrets.EnvPrefix)
	}
}

func TestLoadConfig_SecretErrors(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantField string
	}{
		{
			name:      "unresolved reference",
			content:   "server:\n  auth:\n    keys:\n      - name: deploy\n        key: \"${secret:nowhere}\"\n",
			wantField: "server.auth.keys[0].key",
		},
		{
			name:      "missing secrets dir",
			content:   "notify:\n  webhook_url: \"${secret:hook}\"\nsecrets:\n  dir: \"/nonexistent/promptcanary\"\n",
			wantField: "secrets.dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Errors[0].Field != tt.wantField {
				t.Errorf("expected error for field %q, got %v", tt.wantField, verr.Errors)
			}
		})
	}
}

func TestLoadConfigWithEnvOverrides_SecretPrefix(t *testing.T) {
	t.Setenv("PROMPTCANARY_SECRETS_ENV_PREFIX", "CANARY_")
	t.Setenv("CANARY_HOOK", "https://hooks.example.com/canary")
	path := writeConfig(t, "notify:\n  webhook_url: \"${secret:hook}\"\n")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Notify.WebhookURL != "https://hooks.example.com/canary" {
		t.Errorf("unexpected webhook url %q", cfg.Notify.WebhookURL)
	}
}
