// Package notify delivers promote and rollback events to an external webhook.
//
// Delivery is best-effort: Notify never blocks the controller, each POST has
// its own timeout, a token bucket caps bursts, and failures are only logged.
package notify
