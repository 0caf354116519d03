package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/promptcanary/pkg/config"
)

func TestMiddleware_Handle(t *testing.T) {
	v := NewValidator([]config.APIKeyConfig{
		{Name: "deploy", Key: "pc-deploy"},
		{Name: "dashboard", Key: "pc-read", ReadOnly: true},
	})
	mw := NewMiddleware(v, MiddlewareOptions{
		Exempt: func(r *http.Request) bool { return r.URL.Path == "/health" },
	})

	var gotKey string
	handler := mw.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info, ok := KeyFromContext(r.Context()); ok {
			gotKey = info.Name
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name    string
		method  string
		path    string
		key     string
		want    int
		wantKey string
	}{
		{"exempt path", http.MethodGet, "/health", "", http.StatusOK, ""},
		{"missing key", http.MethodGet, "/v1/releases", "", http.StatusUnauthorized, ""},
		{"invalid key", http.MethodGet, "/v1/releases", "nope", http.StatusUnauthorized, ""},
		{"write key read", http.MethodGet, "/v1/releases", "pc-deploy", http.StatusOK, "deploy"},
		{"write key write", http.MethodPost, "/v1/releases", "pc-deploy", http.StatusOK, "deploy"},
		{"read-only key read", http.MethodGet, "/v1/releases", "pc-read", http.StatusOK, "dashboard"},
		{"read-only key write", http.MethodPost, "/v1/releases/r/promote", "pc-read", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotKey = ""
			r := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				r.Header.Set("Authorization", "Bearer "+tt.key)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if gotKey != tt.wantKey {
				t.Errorf("key in context = %q, want %q", gotKey, tt.wantKey)
			}
			if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 without WWW-Authenticate header")
			}
		})
	}
}

func TestMiddleware_OnError(t *testing.T) {
	var gotStatus int
	var gotMsg string
	mw := NewMiddleware(NewValidator(nil), MiddlewareOptions{
		OnError: func(w http.ResponseWriter, statusCode int, message string) {
			gotStatus, gotMsg = statusCode, message
			w.WriteHeader(statusCode)
		},
	})

	w := httptest.NewRecorder()
	mw.Handle(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/v1/policy", nil))

	if gotStatus != http.StatusUnauthorized || gotMsg == "" {
		t.Errorf("OnError called with (%d, %q)", gotStatus, gotMsg)
	}
}
