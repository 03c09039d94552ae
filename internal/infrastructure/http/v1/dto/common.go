// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// --- Pagination ---

// PaginationRequest contains limit/offset paging parameters.
type PaginationRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// --- List Response ---

// ListResponse wraps list results with pagination.
type ListResponse[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
}

// ItemsResponse wraps unpaged list results.
type ItemsResponse[T any] struct {
	Items []T `json:"items"`
}

// --- Success Response ---

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// --- ID helpers ---

// ParseID parses a required identifier field.
func ParseID(field, raw string) (id.ID, error) {
	if raw == "" {
		return id.Nil(), apperror.NewValidation(field + " is required").WithDetail("field", field)
	}
	parsed, err := id.Parse(raw)
	if err != nil {
		return id.Nil(), apperror.NewValidation("invalid "+field+" format").WithDetail("field", field)
	}
	return parsed, nil
}

// ParseOptionalID parses an identifier field that may be empty.
func ParseOptionalID(field, raw string) (*id.ID, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := ParseID(field, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
