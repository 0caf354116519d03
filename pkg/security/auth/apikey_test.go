package auth

import (
	"errors"
	"net/http/httptest"
	"testing"

	"mercator-hq/promptcanary/pkg/config"
)

func TestValidator_Validate(t *testing.T) {
	v := NewValidator([]config.APIKeyConfig{
		{Name: "deploy", Key: "pc-deploy-123"},
		{Name: "dashboard", Key: "pc-read-456", ReadOnly: true},
	})

	info, err := v.Validate("pc-read-456")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if info.Name != "dashboard" || !info.ReadOnly {
		t.Errorf("Validate() = %+v", info)
	}

	if _, err := v.Validate("pc-unknown"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("unknown key error = %v, want ErrInvalidKey", err)
	}
	if _, err := v.Validate(""); !errors.Is(err, ErrMissingKey) {
		t.Errorf("empty key error = %v, want ErrMissingKey", err)
	}
}

func TestValidator_Replace(t *testing.T) {
	v := NewValidator([]config.APIKeyConfig{{Name: "old", Key: "k1"}})
	v.Replace([]config.APIKeyConfig{{Name: "new", Key: "k2"}})

	if _, err := v.Validate("k1"); err == nil {
		t.Error("replaced key still accepted")
	}
	if info, err := v.Validate("k2"); err != nil || info.Name != "new" {
		t.Errorf("Validate(k2) = %+v, %v", info, err)
	}
	if v.Len() != 1 {
		t.Errorf("Len() = %d, want 1", v.Len())
	}
}

func TestExtractKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"bearer", map[string]string{"Authorization": "Bearer abc"}, "abc"},
		{"bearer lowercase scheme", map[string]string{"Authorization": "bearer abc"}, "abc"},
		{"x-api-key", map[string]string{"X-API-Key": "xyz"}, "xyz"},
		{"bearer wins", map[string]string{"Authorization": "Bearer abc", "X-API-Key": "xyz"}, "abc"},
		{"basic ignored", map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}, ""},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/releases", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ExtractKey(r); got != tt.want {
				t.Errorf("ExtractKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
