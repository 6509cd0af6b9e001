// Package apperror provides structured error handling following RFC 7807 Problem Details.
// Every business failure of the movement engine is an AppError so callers can map
// Code and Details without parsing messages.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation       = "VALIDATION_ERROR"
	CodeLocationInactive = "LOCATION_INACTIVE"
	CodeProductInactive  = "PRODUCT_INACTIVE"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Business rule blocks (409)
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeBatchQuarantine   = "BATCH_QUARANTINE"
	CodeBatchExpired      = "BATCH_EXPIRED"
	CodeRuleViolation     = "RULE_VIOLATION"
	CodeConflict          = "CONFLICT"
	CodeIdempotency       = "IDEMPOTENCY_CONFLICT"
)

// AppError is the standard error type of the service.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details carries the machine-readable meta (batch id, quantities, ...)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

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

// NewLocationInactive is returned when stock is moved into a deactivated location.
func NewLocationInactive(locationID any) *AppError {
	return &AppError{
		Code:       CodeLocationInactive,
		Message:    "Destination location is inactive",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"locationId": locationID},
	}
}

// NewProductInactive is returned when a movement references a deactivated product.
func NewProductInactive(productID any) *AppError {
	return &AppError{
		Code:       CodeProductInactive,
		Message:    "Product is inactive",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"productId": productID},
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

// NewInsufficientStock creates a stock shortage error (409).
func NewInsufficientStock(locationID, productID any, requested, available decimal.Decimal) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"locationId": locationID,
			"productId":  productID,
			"requested":  requested.String(),
			"available":  available.String(),
		},
	}
}

// NewBatchQuarantine blocks a decrease from a batch that is not released.
func NewBatchQuarantine(batchID any, batchNumber, status string) *AppError {
	return &AppError{
		Code:       CodeBatchQuarantine,
		Message:    fmt.Sprintf("Batch %s is not released (status %s)", batchNumber, status),
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"batchId":     batchID,
			"batchNumber": batchNumber,
			"status":      status,
		},
	}
}

// NewBatchExpired blocks a decrease from a batch past its expiry date.
func NewBatchExpired(batchID any, batchNumber string, expiresAt time.Time) *AppError {
	return &AppError{
		Code:       CodeBatchExpired,
		Message:    fmt.Sprintf("Batch %s expired on %s", batchNumber, expiresAt.UTC().Format(time.DateOnly)),
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"batchId":     batchID,
			"batchNumber": batchNumber,
			"expiresAt":   expiresAt.UTC().Format(time.RFC3339),
		},
	}
}

// NewRuleViolation is returned when a tenant-configured rule rejects a movement.
func NewRuleViolation(rule, message string) *AppError {
	if message == "" {
		message = fmt.Sprintf("Movement rejected by rule %q", rule)
	}
	return &AppError{
		Code:       CodeRuleViolation,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"rule": rule},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewTimeout is returned when a statement or lock wait exceeded its budget.
func NewTimeout(err error) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    "Operation timed out, it is safe to retry",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request body or user.
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

func IsValidation(err error) bool        { return HasCode(err, CodeValidation) }
func IsNotFound(err error) bool          { return HasCode(err, CodeNotFound) }
func IsInsufficientStock(err error) bool { return HasCode(err, CodeInsufficientStock) }
func IsBatchQuarantine(err error) bool   { return HasCode(err, CodeBatchQuarantine) }
func IsBatchExpired(err error) bool      { return HasCode(err, CodeBatchExpired) }
