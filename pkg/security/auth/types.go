package auth

import (
	"context"
	"errors"
)

var (
	// ErrMissingKey is returned when a request carries no API key.
	ErrMissingKey = errors.New("missing API key")

	// ErrInvalidKey is returned when the presented key is not configured.
	ErrInvalidKey = errors.New("invalid API key")
)

// KeyInfo identifies an authenticated caller. The secret itself is never
// kept here so KeyInfo is safe to log.
type KeyInfo struct {
	Name     string
	ReadOnly bool
}

// CanWrite reports whether the key may issue a request with the given method.
func (k *KeyInfo) CanWrite(method string) bool {
	return !k.ReadOnly || isReadMethod(method)
}

type contextKey struct{}

// WithKey returns a copy of ctx carrying info.
func WithKey(ctx context.Context, info *KeyInfo) context.Context {
	return context.WithValue(ctx, contextKey{}, info)
}

// KeyFromContext returns the key that authenticated the request, if any.
func KeyFromContext(ctx context.Context) (*KeyInfo, bool) {
	info, ok := ctx.Value(contextKey{}).(*KeyInfo)
	return info, ok
}
