package auth

import (
	"errors"
	"log/slog"
	"net/http"
)

// ErrorWriter writes a rejection with the given status code.
type ErrorWriter func(w http.ResponseWriter, statusCode int, message string)

// MiddlewareOptions configures NewMiddleware.
type MiddlewareOptions struct {
	// Exempt requests skip authentication (health checks and metrics scrapes).
	Exempt func(*http.Request) bool

	// OnError writes rejections. Defaults to http.Error.
	OnError ErrorWriter

	Logger *slog.Logger
}

// Middleware rejects requests without a valid API key.
type Middleware struct {
	validator *Validator
	exempt    func(*http.Request) bool
	onError   ErrorWriter
	logger    *slog.Logger
}

// NewMiddleware creates an authentication middleware backed by validator.
func NewMiddleware(validator *Validator, opts MiddlewareOptions) *Middleware {
	m := &Middleware{
		validator: validator,
		exempt:    opts.Exempt,
		onError:   opts.OnError,
		logger:    opts.Logger,
	}
	if m.onError == nil {
		m.onError = func(w http.ResponseWriter, statusCode int, message string) {
			http.Error(w, message, statusCode)
		}
	}
	if m.logger == nil {
		m.logger = slog.Default().With("component", "auth")
	}
	return m
}

// Handle wraps next with API key authentication.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.exempt != nil && m.exempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		info, err := m.validator.Validate(ExtractKey(r))
		if err != nil {
			m.logger.Warn("rejected request",
				"error", err,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="promptcanary"`)
			msg := "invalid API key"
			if errors.Is(err, ErrMissingKey) {
				msg = "missing API key: use Authorization: Bearer <key> or " + APIKeyHeader
			}
			m.onError(w, http.StatusUnauthorized, msg)
			return
		}

		if !info.CanWrite(r.Method) {
			m.logger.Warn("read-only key used for write",
				"key", info.Name,
				"method", r.Method,
				"path", r.URL.Path,
			)
			m.onError(w, http.StatusForbidden, "API key "+info.Name+" is read-only")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithKey(r.Context(), info)))
	})
}
