// Package apperror provides structured error handling for the costing core.
// All business errors must use AppError for consistent reporting to callers.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the lot-costing domain. Stock shortfalls have no code
// here on purpose: a short draw succeeds with a warning, it is not an error.
const (
	// Validation errors (400)
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidQuantity = "INVALID_QUANTITY"

	// Business rule violations (422)
	CodeRecalculationFailed = "RECALCULATION_FAILED"

	// Transaction conflicts (409)
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"
)

// AppError is the standard error type for the module.
// It implements the error interface and carries structured details.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (ids, quantities, dates)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code for API layers
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidQuantity rejects zero or negative requested quantities.
// This is a caller error and must be raised before any mutation.
func NewInvalidQuantity(quantity string) *AppError {
	return &AppError{
		Code:       CodeInvalidQuantity,
		Message:    "requested quantity must be positive",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"quantity": quantity},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewRecalculationFailed wraps an error that aborted a reversal/replay run.
// The enclosing transaction must roll back; partial replay is never persisted.
func NewRecalculationFailed(productID string, err error) *AppError {
	return &AppError{
		Code:       CodeRecalculationFailed,
		Message:    "FIFO recalculation failed",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"product_id": productID},
		Err:        err,
	}
}

// NewConcurrentModification creates a transaction conflict error.
// The caller retries the whole operation from a clean transaction.
func NewConcurrentModification(err error) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Records were modified by another transaction. Retry the operation.",
		HTTPStatus: http.StatusConflict,
		Err:        err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsInvalidQuantity checks if error is CodeInvalidQuantity
func IsInvalidQuantity(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeInvalidQuantity
	}
	return false
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeConcurrentModification
	}
	return false
}
