package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// ReleaseIDKey is the context key for release IDs.
	ReleaseIDKey contextKey = "release_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithReleaseID adds a release ID to the context.
func WithReleaseID(ctx context.Context, releaseID string) context.Context {
	return context.WithValue(ctx, ReleaseIDKey, releaseID)
}

// GetReleaseID retrieves the release ID from the context.
func GetReleaseID(ctx context.Context) string {
	if releaseID, ok := ctx.Value(ReleaseIDKey).(string); ok {
		return releaseID
	}
	return ""
}

// FromContext returns logger annotated with the request and release IDs
// stored in ctx. A nil logger uses slog.Default().
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	var args []any
	if id := GetRequestID(ctx); id != "" {
		args = append(args, "request_id", id)
	}
	if id := GetReleaseID(ctx); id != "" {
		args = append(args, "release_id", id)
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}
