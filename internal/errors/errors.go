package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an Arcana error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrFileNotFound     ErrorCode = "FILE_NOT_FOUND"    // 404
	ErrContentTooLarge  ErrorCode = "CONTENT_TOO_LARGE" // 413
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED" // 422
	ErrCancelled        ErrorCode = "CANCELLED"         // 499
	ErrInternal         ErrorCode = "INTERNAL"          // 500
	ErrStorage          ErrorCode = "STORAGE"           // 503
)

// ArcanaError represents a structured error with code, status, and details.
type ArcanaError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *ArcanaError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *ArcanaError) Unwrap() error {
	return e.cause
}

// Retryable reports whether the caller may retry the same operation unchanged.
func (e *ArcanaError) Retryable() bool {
	return e.Code == ErrStorage
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ArcanaError {
	return &ArcanaError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewValidation creates a 422 error for input that is well-formed but
// inconsistent with the catalog (e.g. wrong number of cards for a spread).
func NewValidation(field, msg string) *ArcanaError {
	return &ArcanaError{
		Code:    ErrValidationFailed,
		Status:  422,
		Message: fmt.Sprintf("%s: %s", field, msg),
		Details: map[string]any{"field": field},
	}
}

// NewCardCountMismatch creates a 422 error when the drawn cards don't fill
// the spread's positions exactly.
func NewCardCountMismatch(spreadID, want, got int) *ArcanaError {
	return &ArcanaError{
		Code:    ErrValidationFailed,
		Status:  422,
		Message: fmt.Sprintf("spread %d has %d positions, got %d cards", spreadID, want, got),
		Details: map[string]any{"field": "cards", "spread_id": spreadID, "positions": want, "cards": got},
	}
}

// NewNotFound creates a 404 error for a missing entity of the given kind.
func NewNotFound(kind, identifier string) *ArcanaError {
	return &ArcanaError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *ArcanaError {
	return &ArcanaError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewContentTooLarge creates a 413 error when free text exceeds its limit.
func NewContentTooLarge(field string, max, actual int) *ArcanaError {
	return &ArcanaError{
		Code:    ErrContentTooLarge,
		Status:  413,
		Message: fmt.Sprintf("%s exceeds maximum size: %d chars (max %d)", field, actual, max),
		Details: map[string]any{"field": field, "max_chars": max, "actual_chars": actual},
	}
}

// NewCancelled creates a 499 error when an operation is cancelled mid-flight.
func NewCancelled(operation string) *ArcanaError {
	return &ArcanaError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
	}
}

// NewStorage creates a 503 error for persistence failures. These are
// user-retryable; nothing retries them automatically.
func NewStorage(err error) *ArcanaError {
	msg := "storage unavailable"
	if err != nil {
		msg = err.Error()
	}
	return &ArcanaError{
		Code:    ErrStorage,
		Status:  503,
		Message: msg,
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ArcanaError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ArcanaError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// As extracts an *ArcanaError from err's chain.
func As(err error) (*ArcanaError, bool) {
	var aErr *ArcanaError
	if stderrors.As(err, &aErr) {
		return aErr, true
	}
	return nil, false
}

// Is checks if an error (or anything it wraps) is an ArcanaError with the given code.
func Is(err error, code ErrorCode) bool {
	if aErr, ok := As(err); ok {
		return aErr.Code == code
	}
	return false
}
