package cli

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := &ConfigError{
		Field:   "canary.threshold",
		Message: "must be between 0 and 1",
	}

	expected := "config error in canary.threshold: must be between 0 and 1"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}

	bare := NewConfigError("", "file not found")
	if bare.Error() != "config error: file not found" {
		t.Errorf("Error() = %q", bare.Error())
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := NewCommandError("promote", underlyingErr)

	expected := "command promote failed: underlying error"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is() should work with CommandError.Unwrap()")
	}
}

func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: http.StatusConflict, Type: "state_conflict", Message: "cannot promote release \"r1\" in state stable"}

	expected := `api error (409 state_conflict): cannot promote release "r1" in state stable`
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitFailure},
		{"config", NewConfigError("x", "y"), ExitConfig},
		{"not found", &APIError{StatusCode: http.StatusNotFound}, ExitNotFound},
		{"rejected", &APIError{StatusCode: http.StatusConflict}, ExitRejected},
		{"validation", &APIError{StatusCode: http.StatusBadRequest}, ExitRejected},
		{"server error", &APIError{StatusCode: http.StatusInternalServerError}, ExitFailure},
		{"unreachable", &TransportError{URL: "http://x", Err: errors.New("refused")}, ExitUnreached},
		{"wrapped", NewCommandError("status", fmt.Errorf("get: %w", &APIError{StatusCode: http.StatusNotFound})), ExitNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
