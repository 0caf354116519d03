// Package server exposes the canary controller over HTTP/JSON.
//
// # Routes
//
//   - POST /v1/releases                         - create a release (version 1 active)
//   - GET  /v1/releases                         - list releases
//   - GET  /v1/releases/{id}                    - get one release
//   - POST /v1/releases/{id}/versions           - register a new version
//   - GET  /v1/releases/{id}/route              - pick the version serving one request
//   - POST /v1/releases/{id}/evaluations        - record precomputed category scores
//   - POST /v1/releases/{id}/score              - run the configured scorers, then record
//   - GET  /v1/releases/{id}/status             - statistics and recommendation
//   - GET  /v1/releases/{id}/events?limit=N     - transition audit trail, newest first
//   - POST /v1/releases/{id}/canary             - start a canary
//   - PUT  /v1/releases/{id}/canary/percent     - adjust the split
//   - POST /v1/releases/{id}/promote            - promote ({"force": true} overrides collecting)
//   - POST /v1/releases/{id}/rollback           - roll back
//   - POST /v1/releases/{id}/check              - run the automatic check now
//   - GET  /v1/policy                           - promotion policy and score weights in effect
//
// When configured, GET /health, /ready, /version and the Prometheus metrics
// path are mounted on the same mux.
//
// # Errors
//
// Failures use a single body shape:
//
//	{"error": {"type": "invalid_request_error", "message": "invalid percent: must be 1-100, got 150", "param": "percent"}}
//
// Controller error kinds map to 400 (validation), 404 (not found),
// 409 (illegal state, insufficient data) and 422 (no category scores).
//
// # Authentication
//
// When server.auth.keys is non-empty every /v1 route requires a key, sent as
// "Authorization: Bearer <key>" or X-API-Key. Missing or unknown keys get 401
// (authentication_error); read-only keys get 403 (permission_error) on
// anything but GET and HEAD. With server.tls.enabled the listener serves
// HTTPS and re-reads the certificate files every server.tls.reload_interval.
//
// # Middleware Chain
//
// Outermost to innermost: recovery, request ID, logging, tracing, auth, metrics.
// The metrics middleware wraps the mux directly so it can label requests with
// the matched route pattern.
//
// # Graceful Shutdown
//
// Start blocks until its context is cancelled or Stop is called, then drains
// in-flight requests for up to server.shutdown_timeout.
package server
