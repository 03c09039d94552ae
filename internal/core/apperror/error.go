// Package apperror defines the coded errors of the ledger. The code decides
// the HTTP status and is what callers match on with errors.Is.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. Clients switch on these; they are part of the API.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"

	// Validation errors (400)
	CodeValidation             = "VALIDATION_ERROR"
	CodeSameWarehouse          = "SAME_WAREHOUSE"
	CodeAuditRequirementNotMet = "AUDIT_REQUIREMENT_NOT_MET"

	// Business rule violations (422)
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeExceedsPending         = "EXCEEDS_PENDING"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict          = "CONFLICT"
	CodeDuplicate         = "DUPLICATE_ENTRY"
	CodeIdempotency       = "IDEMPOTENCY_CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeAlreadyDelivered  = "ALREADY_DELIVERED"
)

// Sentinel errors for errors.Is checks. Matching is by Code, so any AppError
// built by the factories below matches its sentinel regardless of details.
var (
	ErrInsufficientStock      = &AppError{Code: CodeInsufficientStock, Message: "Insufficient stock", HTTPStatus: http.StatusUnprocessableEntity}
	ErrSameWarehouse          = &AppError{Code: CodeSameWarehouse, Message: "Source and target warehouse must differ", HTTPStatus: http.StatusBadRequest}
	ErrExceedsPending         = &AppError{Code: CodeExceedsPending, Message: "Quantity exceeds outstanding amount", HTTPStatus: http.StatusUnprocessableEntity}
	ErrAuditRequirementNotMet = &AppError{Code: CodeAuditRequirementNotMet, Message: "Reason code and explanation are required", HTTPStatus: http.StatusBadRequest}
	ErrInvalidTransition      = &AppError{Code: CodeInvalidTransition, Message: "Invalid status transition", HTTPStatus: http.StatusConflict}
	ErrAlreadyDelivered       = &AppError{Code: CodeAlreadyDelivered, Message: "Delivery already recorded", HTTPStatus: http.StatusConflict}
	ErrNotFound               = &AppError{Code: CodeNotFound, Message: "Not found", HTTPStatus: http.StatusNotFound}
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
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

// Is reports whether target is an AppError with the same Code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
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

func newError(code string, status int, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// from copies a sentinel so that details never leak into the shared value.
func from(sentinel *AppError, details map[string]any) *AppError {
	return &AppError{Code: sentinel.Code, Message: sentinel.Message, HTTPStatus: sentinel.HTTPStatus, Details: details}
}

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return newError(CodeValidation, http.StatusBadRequest, message)
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return from(ErrNotFound, map[string]any{"entity": entity, "id": id}).
		withMessage(fmt.Sprintf("%s not found", entity))
}

// NewBusinessRule creates a 422 error with a caller-chosen code.
func NewBusinessRule(code, message string) *AppError {
	return newError(code, http.StatusUnprocessableEntity, message)
}

// NewInsufficientStock reports a decrement that would take a balance below zero.
func NewInsufficientStock(productID, warehouseID string, requested, available int64) *AppError {
	return from(ErrInsufficientStock, map[string]any{
		"product_id":   productID,
		"warehouse_id": warehouseID,
		"requested":    requested,
		"available":    available,
	})
}

// NewSameWarehouse is returned for a transfer whose source equals its target.
func NewSameWarehouse(warehouseID string) *AppError {
	return from(ErrSameWarehouse, map[string]any{"warehouse_id": warehouseID})
}

// NewExceedsPending is returned when a check-in receives more than is outstanding on a PO line.
func NewExceedsPending(poLineID string, requested, outstanding int64) *AppError {
	return from(ErrExceedsPending, map[string]any{
		"po_line_id":  poLineID,
		"requested":   requested,
		"outstanding": outstanding,
	})
}

// NewAuditRequirementNotMet is returned when a reason code or explanation is missing.
func NewAuditRequirementNotMet(field string, minLength int) *AppError {
	return from(ErrAuditRequirementNotMet, map[string]any{"field": field, "min_length": minLength})
}

// NewInvalidTransition is returned when a status CAS finds an unexpected current state.
func NewInvalidTransition(entity string, id any, current, requested string) *AppError {
	return from(ErrInvalidTransition, map[string]any{
		"entity":    entity,
		"id":        id,
		"current":   current,
		"requested": requested,
	})
}

// NewAlreadyDelivered is returned by a second delivery recording.
func NewAlreadyDelivered(id any) *AppError {
	return from(ErrAlreadyDelivered, map[string]any{"id": id})
}

// NewConcurrentModification reports a lost compare-and-swap or a
// serialization failure. Callers may retry the whole operation.
func NewConcurrentModification(entity string, id any) *AppError {
	e := newError(CodeConcurrentModification, http.StatusConflict, "Record was modified concurrently, retry the request")
	e.Details = map[string]any{"entity": entity, "id": id}
	return e
}

// NewInternal wraps err. Only the code and a generic message reach clients.
func NewInternal(err error) *AppError {
	return newError(CodeInternal, http.StatusInternalServerError, "Internal server error").WithCause(err)
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, message)
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return newError(CodeForbidden, http.StatusForbidden, message)
}

// NewIdempotencyConflict is returned while the first request with key is still running.
func NewIdempotencyConflict(key string) *AppError {
	return newError(CodeIdempotency, http.StatusConflict, "Request with this idempotency key is in progress").
		WithDetail("idempotency_key", key)
}

// NewIdempotencyMismatch is returned when key was first used by a different
// user, route or body.
func NewIdempotencyMismatch(key string) *AppError {
	return newError(CodeIdempotency, http.StatusConflict, "Idempotency key reused for a different request").
		WithDetail("idempotency_key", key)
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return newError(CodeConflict, http.StatusConflict, message)
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	e := newError(CodeDuplicate, http.StatusConflict, fmt.Sprintf("%s with this %s already exists", entity, field))
	e.Details = map[string]any{"entity": entity, "field": field, "value": value}
	return e
}

func (e *AppError) withMessage(message string) *AppError {
	e.Message = message
	return e
}

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

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeConcurrentModification
	}
	return false
}
