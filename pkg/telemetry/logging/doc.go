// Package logging configures structured logging on top of log/slog.
//
// New builds a JSON or text logger from the telemetry.logging settings and
// Setup installs it as the process default. The Redactor installed as the
// handler's ReplaceAttr hook replaces values under sensitive keys
// (authorization, api_key, token, password, secret) with [REDACTED] and
// strips the query string and credentials from any "*_url" attribute.
// Other string and error values are scrubbed with the built-in patterns
// (pc_ API keys, bearer tokens, password assignments) plus any configured
// RedactPatterns.
//
// Request and release IDs travel in the context:
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logging.FromContext(ctx, logger).Info("canary started")
package logging
