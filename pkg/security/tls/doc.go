// Package tls serves the API over HTTPS with certificates that are re-read
// from disk when they change, so renewals do not require a restart.
package tls
