package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		switch r.URL.Path {
		case "/v1/releases/r1/canary/percent":
			if r.Method != http.MethodPut {
				t.Errorf("method = %s", r.Method)
			}
			var body map[string]int
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "r1", "canary_percent": body["percent"]})
		case "/v1/releases/missing/status":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"not_found","message":"release \"missing\" not found"}}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", 0)
	ctx := context.Background()

	var rel struct {
		ID            string `json:"id"`
		CanaryPercent int    `json:"canary_percent"`
	}
	if err := client.Do(ctx, http.MethodPut, "/v1/releases/r1/canary/percent", map[string]int{"percent": 40}, &rel); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if rel.CanaryPercent != 40 {
		t.Errorf("CanaryPercent = %d, want 40", rel.CanaryPercent)
	}

	err := client.Do(ctx, http.MethodGet, "/v1/releases/missing/status", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Type != "not_found" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if ExitCode(err) != ExitNotFound {
		t.Errorf("ExitCode() = %d", ExitCode(err))
	}

	err = client.Do(ctx, http.MethodGet, "/other", nil, nil)
	if !errors.As(err, &apiErr) || apiErr.Message != "upstream down" {
		t.Errorf("expected raw body message, got %v", err)
	}
}

func TestClientAPIKey(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"type":"permission_error","message":"API key dashboard is read-only"}}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, 0).WithAPIKey("pc-read").Do(context.Background(), http.MethodPost, "/v1/releases/r1/promote", nil, nil)
	if got != "Bearer pc-read" {
		t.Errorf("Authorization = %q", got)
	}
	if ExitCode(err) != ExitRejected {
		t.Errorf("ExitCode() = %d, want %d", ExitCode(err), ExitRejected)
	}
}

func TestClientUnreachable(t *testing.T) {
	client := NewClient("127.0.0.1:1", 0)
	if client.BaseURL() != "http://127.0.0.1:1" {
		t.Errorf("BaseURL() = %q", client.BaseURL())
	}

	err := client.Do(context.Background(), http.MethodGet, "/v1/releases", nil, nil)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if ExitCode(err) != ExitUnreached {
		t.Errorf("ExitCode() = %d", ExitCode(err))
	}
}
