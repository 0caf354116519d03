package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"mercator-hq/promptcanary/pkg/canary"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	// Type categorizes the error (see the ErrorType constants).
	Type string `json:"type"`

	// Message names the violated precondition.
	Message string `json:"message"`

	// Param is the offending argument, when known.
	Param string `json:"param,omitempty"`
}

// Error type constants.
const (
	ErrorTypeInvalidRequest   = "invalid_request_error"
	ErrorTypeNotFound         = "not_found"
	ErrorTypeConflict         = "state_conflict"
	ErrorTypeMissingInput     = "missing_input"
	ErrorTypeInsufficientData = "insufficient_data"
	ErrorTypeNotImplemented   = "not_implemented"
	ErrorTypeAuthentication   = "authentication_error"
	ErrorTypePermission       = "permission_error"
	ErrorTypeServerError      = "server_error"
)

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, statusCode int, errType, message string) {
	_ = writeJSON(w, statusCode, ErrorResponse{Error: ErrorDetail{Type: errType, Message: message}})
}

// writeCanaryError maps a controller error onto an HTTP status code.
func writeCanaryError(w http.ResponseWriter, err error) {
	status, errType := classify(err)

	detail := ErrorDetail{Type: errType, Message: err.Error()}
	var verr *canary.ValidationError
	if errors.As(err, &verr) {
		detail.Param = verr.Field
	}
	_ = writeJSON(w, status, ErrorResponse{Error: detail})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, canary.ErrValidation):
		return http.StatusBadRequest, ErrorTypeInvalidRequest
	case errors.Is(err, canary.ErrNotFound):
		return http.StatusNotFound, ErrorTypeNotFound
	case errors.Is(err, canary.ErrState):
		return http.StatusConflict, ErrorTypeConflict
	case errors.Is(err, canary.ErrMissingInput):
		return http.StatusUnprocessableEntity, ErrorTypeMissingInput
	case errors.Is(err, canary.ErrInsufficientData):
		return http.StatusConflict, ErrorTypeInsufficientData
	default:
		return http.StatusInternalServerError, ErrorTypeServerError
	}
}

// decodeBody decodes a JSON request body into v. An empty body is accepted
// when optional is true.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, ErrorTypeInvalidRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
