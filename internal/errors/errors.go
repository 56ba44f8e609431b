package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a LIB error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"  // 400
	ErrFeatureDisabled ErrorCode = "FEATURE_DISABLED" // 403
	ErrNotFound        ErrorCode = "NOT_FOUND"        // 404 (internal; surfaced as an absent result)
	ErrConflict        ErrorCode = "CONFLICT"         // 409
	ErrCancelled       ErrorCode = "CANCELLED"        // 499
	ErrStorageInit     ErrorCode = "STORAGE_INIT"     // 500
	ErrStorageCorrupt  ErrorCode = "STORAGE_CORRUPT"  // 500
	ErrScanTraversal   ErrorCode = "SCAN_TRAVERSAL"   // 500
	ErrInternal        ErrorCode = "INTERNAL"         // 500
	ErrStorageBusy     ErrorCode = "STORAGE_BUSY"     // 503
)

// LibError represents a structured error with code, status, and details.
type LibError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *LibError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *LibError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the failed call as-is.
// Only lock contention is retryable.
func (e *LibError) Retryable() bool {
	return e.Code == ErrStorageBusy
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *LibError {
	return &LibError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInvalidPath creates a 400 error that carries the offending path.
func NewInvalidPath(msg, path string) *LibError {
	return &LibError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
		Details: map[string]any{"path": path},
	}
}

// NewFeatureDisabled creates a 403 error for an operation turned off in configuration.
func NewFeatureDisabled(feature string, details map[string]any) *LibError {
	return &LibError{
		Code:    ErrFeatureDisabled,
		Status:  403,
		Message: fmt.Sprintf("%s disabled", feature),
		Details: details,
	}
}

// NewNotFound creates a 404 error for a catalog lookup miss.
func NewNotFound(identifier string) *LibError {
	return &LibError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *LibError {
	return &LibError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewCancelled creates a 499 error when an operation's context is cancelled.
func NewCancelled(operation string) *LibError {
	return &LibError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
	}
}

// NewStorageInit creates a 500 error for an unrecoverable failure opening the catalog.
func NewStorageInit(err error) *LibError {
	return &LibError{
		Code:    ErrStorageInit,
		Status:  500,
		Message: messageOf(err, "failed to initialize storage"),
		Err:     err,
	}
}

// NewStorageCorrupt creates a 500 error for a damaged or unreadable catalog file.
func NewStorageCorrupt(err error) *LibError {
	return &LibError{
		Code:    ErrStorageCorrupt,
		Status:  500,
		Message: messageOf(err, "storage corrupt"),
		Err:     err,
	}
}

// NewStorageBusy creates a 503 error when the write lock could not be acquired in time.
func NewStorageBusy(err error) *LibError {
	return &LibError{
		Code:    ErrStorageBusy,
		Status:  503,
		Message: messageOf(err, "storage busy"),
		Err:     err,
	}
}

// NewScanTraversal creates a 500 error for a scan that failed part way.
// Work committed before the failure is kept.
func NewScanTraversal(runID string, err error) *LibError {
	return &LibError{
		Code:    ErrScanTraversal,
		Status:  500,
		Message: messageOf(err, "scan failed"),
		Details: map[string]any{"run_id": runID},
		Err:     err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *LibError {
	return &LibError{
		Code:    ErrInternal,
		Status:  500,
		Message: messageOf(err, "internal error"),
		Err:     err,
	}
}

func messageOf(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}

// As returns the first LibError in err's chain.
func As(err error) (*LibError, bool) {
	var libErr *LibError
	if stderrors.As(err, &libErr) {
		return libErr, true
	}
	return nil, false
}

// Is checks if an error is (or wraps) a LibError with the given code.
func Is(err error, code ErrorCode) bool {
	if libErr, ok := As(err); ok {
		return libErr.Code == code
	}
	return false
}

// IsRetryable reports whether err is a retryable LibError.
func IsRetryable(err error) bool {
	if libErr, ok := As(err); ok {
		return libErr.Retryable()
	}
	return false
}

// Payload flattens err for callers: {"error": message, "code", "status", ...details}.
// INTERNAL errors (and errors that are not LibErrors) get a generic message and no
// details, so storage paths and SQL text stay out of responses.
func Payload(err error) map[string]any {
	libErr, ok := As(err)
	if !ok || libErr.Code == ErrInternal {
		return map[string]any{
			"error":  "an internal error occurred",
			"code":   string(ErrInternal),
			"status": 500,
		}
	}

	payload := make(map[string]any, len(libErr.Details)+3)
	for k, v := range libErr.Details {
		payload[k] = v
	}
	message := libErr.Message
	if err != error(libErr) {
		// Keep context added by wrapping, e.g. "catalog /a/b: ...".
		message = err.Error()
	}
	payload["error"] = message
	payload["code"] = string(libErr.Code)
	payload["status"] = libErr.Status
	return payload
}
