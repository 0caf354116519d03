// Package telemetry groups the observability packages of the canary service:
//
//   - logging: slog setup and context helpers
//   - metrics: Prometheus collector implementing canary.Observer
//   - tracing: OpenTelemetry spans for API requests
//   - health: liveness, readiness and version endpoints
package telemetry
