package sales_order

import (
	"context"
	"time"

	"factorydesk/internal/core/id"
)

// Repository persists orders. Methods use the transaction in ctx.
type Repository interface {
	// Create inserts the order and its lines.
	Create(ctx context.Context, o *SalesOrder) error

	// Update replaces the header and lines when o.Version matches the
	// stored version, and increments it.
	Update(ctx context.Context, o *SalesOrder) error

	// UpdateStatus sets the status and increments the version.
	UpdateStatus(ctx context.Context, orderID id.ID, status Status) error

	Delete(ctx context.Context, orderID id.ID) error

	// GetByID returns the order with lines, or a not-found error.
	GetByID(ctx context.Context, orderID id.ID) (*SalesOrder, error)

	// GetForUpdate locks the order row and returns it with lines.
	GetForUpdate(ctx context.Context, orderID id.ID) (*SalesOrder, error)

	// List returns headers matching the filter and the total count.
	List(ctx context.Context, filter ListFilter) ([]*SalesOrder, int, error)

	// SalesPersonCompany returns the company of a sales person, or nil.
	SalesPersonCompany(ctx context.Context, salesPersonID id.ID) (*id.ID, error)
}

// ListFilter selects orders of one company.
type ListFilter struct {
	CompanyID id.ID
	From      *time.Time
	To        *time.Time
	Status    *Status
	Limit     int
	Offset    int
}
