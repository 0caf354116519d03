// Package config provides configuration management for the canary service.
//
// Configuration is read from a YAML file, completed with defaults, overridden
// from the environment and validated before use.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("promptcanary.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("promptcanary.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention PROMPTCANARY_SECTION_FIELD:
//
//   - PROMPTCANARY_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - PROMPTCANARY_CANARY_THRESHOLD overrides canary.threshold
//   - PROMPTCANARY_CANARY_WEIGHTS_HEURISTIC overrides canary.weights.heuristic
//   - PROMPTCANARY_STORAGE_SQLITE_DRIVER overrides storage.sqlite.driver
//   - PROMPTCANARY_SERVER_API_KEY adds one key (named "env") to server.auth.keys
//   - PROMPTCANARY_SECRETS_DIR overrides secrets.dir
//
// Environment variables always take precedence over file-based configuration.
// A value that cannot be parsed is a validation error.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Secret resolution
//  5. Validation (fails fast if invalid)
//
// # Secrets
//
// API keys and the webhook URL may hold ${secret:name} references instead
// of literal values. A reference is looked up first as a file named name
// under secrets.dir (mode 0600 or 0400, whitespace trimmed) and then as the
// environment variable secrets.env_prefix + NAME, where NAME is upper-cased
// with hyphens turned into underscores. The default prefix is
// PROMPTCANARY_SECRET_. An unresolved reference fails loading.
//
// # Hot Reload
//
// Watcher observes the configuration file with fsnotify and hands every
// valid new configuration to a callback. Only the canary section (policy
// and weights) is applied to a running service; other sections take effect
// on restart.
//
// # Example Configuration
//
//	server:
//	  listen_address: "127.0.0.1:8080"
//	  tls:
//	    enabled: true
//	    cert_file: "/etc/promptcanary/tls.crt"
//	    key_file: "/etc/promptcanary/tls.key"
//	    reload_interval: 5m
//	  auth:
//	    keys:
//	      - name: deploy
//	        key: "${secret:deploy-key}"
//	      - name: dashboard
//	        key: "pc-read-..."
//	        read_only: true
//
//	canary:
//	  min_samples: 30
//	  threshold: 0.55
//	  auto_rollback: true
//	  weights:
//	    heuristic: 0.2
//	    ai_evaluation: 0.4
//	    ml_metrics: 0.3
//	    human_feedback: 0.1
//
//	storage:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/canary.db"
//	    driver: "sqlite"
//
//	monitor:
//	  check_schedule: "@every 1m"
//	  retention_days: 90
//
//	notify:
//	  webhook_url: "${secret:webhook-url}"
//
//	secrets:
//	  dir: "/run/secrets/promptcanary"
//
//	telemetry:
//	  logging:
//	    redact_patterns:
//	      - name: session
//	        pattern: "sess_[a-z0-9]+"
//	        replacement: "sess_***"
package config
