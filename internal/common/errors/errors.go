// Package errors provides the standardized error taxonomy shared by the
// feature store, cache, and recommendation service.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeNotFound               ErrorCode = "NOT_FOUND"
	ErrCodeStoreUnavailable       ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeInvalidInteractionKind ErrorCode = "INVALID_INTERACTION_KIND"
	ErrCodeInvalidInput           ErrorCode = "INVALID_INPUT"
	ErrCodeCacheUnavailable       ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// Sentinels for errors.Is. A *StandardError matches a sentinel when the codes agree.
var (
	ErrNotFound               = &StandardError{Code: ErrCodeNotFound}
	ErrStoreUnavailable       = &StandardError{Code: ErrCodeStoreUnavailable}
	ErrInvalidInteractionKind = &StandardError{Code: ErrCodeInvalidInteractionKind}
	ErrInvalidInput           = &StandardError{Code: ErrCodeInvalidInput}
	ErrCacheUnavailable       = &StandardError{Code: ErrCodeCacheUnavailable}
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a StandardError carrying the same code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

// NewNotFoundError creates a non-retryable error for an unknown user or business.
func NewNotFoundError(entity string, id int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", entity),
		Details:   fmt.Sprintf("%sId: %d", entity, id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreUnavailableError creates a retryable persistent-store error.
func NewStoreUnavailableError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "Feature store unavailable",
		Details:   fmt.Sprintf("operation: %s, error: %v", operation, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewInvalidInteractionKindError creates a non-retryable caller error.
func NewInvalidInteractionKindError(kind string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInteractionKind,
		Message:   "Invalid interaction kind",
		Details:   fmt.Sprintf("kind: %q, allowed: view, like, save, purchase, share", kind),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidInputError creates a non-retryable validation error.
func NewInvalidInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Invalid input",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError wraps a cache backend failure. Callers degrade
// to direct computation instead of surfacing it.
func NewCacheUnavailableError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Cache unavailable",
		Details:   fmt.Sprintf("operation: %s, error: %v", operation, err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
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

// GetRetryCount returns how many times the orchestrator retries an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStoreUnavailable:
		return 1
	default:
		return 0
	}
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	stdErr := Normalize(err)
	if stdErr == nil {
		return false
	}
	return stdErr.Retryable && GetRetryCount(stdErr.Code) > 0
}

// HTTPStatus maps an error code to the response status used by the API.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInteractionKind, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeStoreUnavailable, ErrCodeCacheUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
