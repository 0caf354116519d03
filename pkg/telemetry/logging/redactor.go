package logging

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// Redacted replaces the value of a sensitive attribute.
const Redacted = "[REDACTED]"

// Built-in pattern names.
const (
	PatternAPIKey      = "api_key"
	PatternBearerToken = "bearer_token"
	PatternPassword    = "password"
)

// RedactPattern is a custom pattern scrubbed from logged string values.
type RedactPattern struct {
	Name        string
	Pattern     string
	Replacement string
}

// sensitiveKeys are substrings of attribute keys whose values are never
// written verbatim.
var sensitiveKeys = []string{
	"authorization",
	"api_key", "apikey",
	"token",
	"password", "passwd",
	"secret",
	"private_key",
}

// defaultPatterns scrub credentials that end up inside free-form values
// such as error messages.
var defaultPatterns = []RedactPattern{
	{Name: PatternAPIKey, Pattern: `pc_[A-Za-z0-9_-]{16,}`, Replacement: "pc_***"},
	{Name: PatternBearerToken, Pattern: `Bearer\s+[A-Za-z0-9\-._~+/]+=*`, Replacement: "Bearer ***"},
	{Name: PatternPassword, Pattern: `(password|passwd|pwd)[:=]\s*[^\s]+`, Replacement: "$1: ***"},
}

type compiledPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Redactor scrubs secrets from log attributes.
type Redactor struct {
	patterns []compiledPattern
}

// NewRedactor creates a Redactor with the built-in patterns followed by
// custom ones. An invalid custom pattern is an error.
func NewRedactor(custom []RedactPattern) (*Redactor, error) {
	r := &Redactor{}
	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, compiledPattern{
			name:        p.Name,
			regex:       regexp.MustCompile(p.Pattern),
			replacement: p.Replacement,
		})
	}
	for _, p := range custom {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %q: %w", p.Name, err)
		}
		r.patterns = append(r.patterns, compiledPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		})
	}
	return r, nil
}

// RedactString applies every pattern to value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook. Sensitive keys are
// replaced outright, "*_url" values lose their query string and credentials,
// and other string values are pattern-scrubbed.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	if isSensitiveKey(key) {
		return slog.String(a.Key, Redacted)
	}
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if strings.HasSuffix(key, "_url") {
			v = stripURL(v)
		}
		if out := r.RedactString(v); out != a.Value.String() {
			return slog.String(a.Key, out)
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			msg := err.Error()
			if out := r.RedactString(msg); out != msg {
				return slog.String(a.Key, out)
			}
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// stripURL drops credentials and query parameters, which commonly carry
// webhook tokens.
func stripURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = ""
		return u.String() + "?" + Redacted
	}
	return u.String()
}
