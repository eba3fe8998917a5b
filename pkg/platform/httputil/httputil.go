// Package httputil centralizes JSON encoding and domain error translation for
// HTTP handlers so every endpoint emits the same envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	dErrors "enroll/pkg/domain-errors"
)

// errorBody is the wire envelope for failures. Internal errors omit the
// description so storage or upstream details never leak to clients.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	RetryAfter       int64  `json:"retry_after_seconds,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error onto an HTTP status and JSON envelope.
// Rate-limit denials additionally carry a Retry-After header.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := ToHTTPStatus(code)

	body := errorBody{Error: string(code)}
	var de *dErrors.Error
	if code != dErrors.CodeInternal && errors.As(err, &de) {
		body.ErrorDescription = de.Message
	}
	if retryAfter, ok := dErrors.RetryAfterOf(err); ok {
		secs := int64(retryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		body.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}

	WriteJSON(w, status, body)
}

// ToHTTPStatus maps domain error codes to HTTP status codes.
func ToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeAlreadyCompleted, dErrors.CodeInvalidState, dErrors.CodeConcurrentModification:
		return http.StatusConflict
	case dErrors.CodeRateLimited, dErrors.CodeAttemptsExhausted:
		return http.StatusTooManyRequests
	case dErrors.CodeExpired:
		return http.StatusGone
	case dErrors.CodeDeliveryFailed, dErrors.CodeUnavailable:
		return http.StatusBadGateway
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
