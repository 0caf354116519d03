// Package health provides liveness, readiness and version endpoints.
//
//   - /health: the process is running
//   - /ready: every registered component check passes (503 otherwise)
//   - /version: build information
//
// Components register checks by name; the service registers its storage
// backend (PingCheck) and the monitor scheduler (RunningCheck). Checks run
// concurrently, each bounded by the checker timeout.
package health
