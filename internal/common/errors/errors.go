// Package errors provides the standardized error taxonomy shared by the
// relay, the session layer and the speech adapter.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Malformed request to the relay. Reported as 400, never retried.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// Backend unreachable, non-success status or unreadable body.
	ErrCodeUpstreamFailed ErrorCode = "UPSTREAM_FAILED"
	// Relay unreachable or unusable from the session layer.
	ErrCodeTransportFailed ErrorCode = "TRANSPORT_FAILED"
	// Platform speech capability missing.
	ErrCodeCapabilityUnavailable ErrorCode = "CAPABILITY_UNAVAILABLE"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// Canned user-visible strings.
const (
	MessagesRequired     = "Messages array is required"
	ProcessingFailed     = "Failed to process chat message"
	RelayApology         = "I apologize for the technical difficulty. Please ensure the backend server is running."
	SessionApology       = "I apologize for the technical difficulty. Please ensure the backend server is accessible."
	SendFailedNotice     = "Failed to send message. Please try again."
	PlansReadyNotice     = "Insurance plans personalized for you!"
	SpeechUnsupported    = "Speech synthesis is not supported on this system"
	DictationUnsupported = "Speech recognition is not supported on this system"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// HTTPStatus maps the code to the status the relay answers with.
func (e *StandardError) HTTPStatus() int {
	return HTTPStatusFor(e.Code)
}

// HTTPStatusFor maps an error code to an HTTP status.
func HTTPStatusFor(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeCapabilityUnavailable:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// NewValidationError creates a non-retryable request validation error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   MessagesRequired,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamError wraps a backend failure.
func NewUpstreamError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamFailed,
		Message:   ProcessingFailed,
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewUpstreamStatusError reports a non-success backend status. The status
// is kept in Metadata["status"].
func NewUpstreamStatusError(status int) *StandardError {
	err := NewUpstreamError(fmt.Errorf("backend returned %d", status))
	err.Metadata = map[string]interface{}{"status": status}
	return err
}

// NewTransportError wraps a failure reaching the relay from a session.
func NewTransportError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransportFailed,
		Message:   "Failed to send message",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewCapabilityUnavailableError reports a missing platform capability.
func NewCapabilityUnavailableError(capability string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCapabilityUnavailable,
		Message:   fmt.Sprintf("%s is not available", capability),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// CodeOf returns the code carried by err, ErrCodeInternal for foreign
// errors and "" for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return Normalize(err).Code
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}
