// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/id"
)

// --- Pagination ---

// PaginationRequest contains limit/offset parameters.
type PaginationRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Defaults sets default pagination values.
func (p *PaginationRequest) Defaults() {
	if p.Limit == 0 {
		p.Limit = 100
	}
}

// --- List Response ---

// ListResponse wraps list results with pagination.
type ListResponse struct {
	Items      any   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit,omitempty"`
	Offset     int   `json:"offset,omitempty"`
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// --- ID parsing ---

// ParseID parses a required identifier of field.
func ParseID(field, raw string) (id.ID, error) {
	v, err := id.Parse(raw)
	if err != nil {
		return id.Nil(), invalidID(field, raw)
	}
	return v, nil
}

// ParseOptionalID parses an identifier that may be absent.
func ParseOptionalID(field string, raw *string) (*id.ID, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := id.ParseOptional(*raw)
	if err != nil {
		return nil, invalidID(field, *raw)
	}
	return v, nil
}

// ParseIDs parses a list of identifiers, reporting the first bad one.
func ParseIDs(field string, raw []string) ([]id.ID, error) {
	out := make([]id.ID, 0, len(raw))
	for _, s := range raw {
		v, err := id.Parse(s)
		if err != nil {
			return nil, invalidID(field, s)
		}
		out = append(out, v)
	}
	return out, nil
}

func invalidID(field, raw string) error {
	return apperror.NewValidation("invalid identifier").
		WithDetail("field", field).
		WithDetail("value", raw)
}
