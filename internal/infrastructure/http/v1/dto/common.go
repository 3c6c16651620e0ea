// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"pharmstock/internal/core/id"
	"pharmstock/internal/domain"
)

// --- List Request ---

// ListRequest contains common list query parameters.
type ListRequest struct {
	Search   string     `form:"search"`
	DateFrom *time.Time `form:"dateFrom" time_format:"2006-01-02"`
	DateTo   *time.Time `form:"dateTo" time_format:"2006-01-02"`
	OrderBy  string     `form:"orderBy"`
	Limit    int        `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset   int        `form:"offset" binding:"omitempty,min=0"`
}

// ToFilter converts the request into a domain list filter with defaults.
func (r ListRequest) ToFilter() domain.ListFilter {
	f := domain.DefaultListFilter()
	f.Search = r.Search
	f.DateFrom = r.DateFrom
	f.DateTo = r.DateTo
	if r.OrderBy != "" {
		f.OrderBy = r.OrderBy
	}
	if r.Limit > 0 {
		f.Limit = r.Limit
	}
	f.Offset = r.Offset
	return f
}

// --- List Response ---

// ListResponse wraps list results with pagination.
type ListResponse struct {
	Items      any   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// FromListResult converts a domain list result.
func FromListResult[T any](r domain.ListResult[T]) ListResponse {
	items := r.Items
	if items == nil {
		items = []T{}
	}
	return ListResponse{
		Items:      items,
		TotalCount: r.TotalCount,
		Limit:      r.Limit,
		Offset:     r.Offset,
	}
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID     string `json:"id"`
	Number string `json:"number,omitempty"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
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
