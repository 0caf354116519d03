package auth

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"mercator-hq/promptcanary/pkg/config"
)

// APIKeyHeader is the alternative to a bearer token.
const APIKeyHeader = "X-API-Key"

// Validator checks presented keys against the configured set. Keys are
// indexed by digest so lookups do not compare secrets byte by byte.
type Validator struct {
	mu   sync.RWMutex
	keys map[[sha256.Size]byte]*KeyInfo
}

// NewValidator creates a validator for keys.
func NewValidator(keys []config.APIKeyConfig) *Validator {
	v := &Validator{}
	v.Replace(keys)
	return v
}

// Replace swaps the accepted key set, e.g. after a configuration reload.
func (v *Validator) Replace(keys []config.APIKeyConfig) {
	m := make(map[[sha256.Size]byte]*KeyInfo, len(keys))
	for _, k := range keys {
		m[sha256.Sum256([]byte(k.Key))] = &KeyInfo{Name: k.Name, ReadOnly: k.ReadOnly}
	}

	v.mu.Lock()
	v.keys = m
	v.mu.Unlock()
}

// Validate returns the caller for key.
func (v *Validator) Validate(key string) (*KeyInfo, error) {
	if key == "" {
		return nil, ErrMissingKey
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	info, ok := v.keys[sha256.Sum256([]byte(key))]
	if !ok {
		return nil, ErrInvalidKey
	}
	return info, nil
}

// Len returns the number of accepted keys.
func (v *Validator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}

// ExtractKey returns the key presented on r, preferring a bearer token over
// the X-API-Key header. It returns "" when neither is set.
func ExtractKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}

func isReadMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}
