package production_summary

import (
	"context"
	"time"

	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
	"factorydesk/internal/domain/catalogs/production_group"
)

// Repository persists summary rows. Methods use the transaction in ctx.
type Repository interface {
	// Ensure inserts an empty pending row for key unless one exists.
	Ensure(ctx context.Context, key Key) error

	// GetForUpdate locks and returns the row, or a not-found error.
	GetForUpdate(ctx context.Context, key Key) (*DailyProductSummary, error)

	// Get returns the row without locking, or a not-found error.
	Get(ctx context.Context, key Key) (*DailyProductSummary, error)

	// ListByDate returns every row of the company on day, with product names.
	ListByDate(ctx context.Context, companyID id.ID, day types.Day) ([]*DailyProductSummary, error)

	// Save writes the row and increments its version.
	Save(ctx context.Context, s *DailyProductSummary) error
}

// OrderSource is the read capability of the order store the aggregator
// depends on. An order belongs to a company through its own company, or
// through its sales person's company when the order has none.
type OrderSource interface {
	// SalesLines returns the product's order lines for orders dated in
	// [from, to).
	SalesLines(ctx context.Context, companyID, productID id.ID, from, to time.Time) ([]SalesLine, error)

	// ProductsOrdered returns the distinct products ordered in [from, to).
	ProductsOrdered(ctx context.Context, companyID id.ID, from, to time.Time) ([]id.ID, error)
}

// ProductCatalog checks aggregation targets.
type ProductCatalog interface {
	Exists(ctx context.Context, companyID, productID id.ID) (bool, error)
}

// GroupSource lists production groups for the day layout.
type GroupSource interface {
	List(ctx context.Context, companyID id.ID) ([]*production_group.ProductionGroup, error)
}

// CacheStamp names the cache generation of a company day: the company
// version and the day version at the time of a read.
type CacheStamp struct {
	Company int64
	Day     int64
}

// DayCache stores day layouts. Set stores under the stamp Get returned, so a
// layout loaded before an Invalidate is never served after it.
type DayCache interface {
	Get(ctx context.Context, companyID id.ID, day types.Day) (*DayView, CacheStamp, bool, error)
	Set(ctx context.Context, companyID id.ID, day types.Day, stamp CacheStamp, view *DayView) error
	Invalidate(ctx context.Context, companyID id.ID, day types.Day) error
}

// Metrics observes summary operations.
type Metrics interface {
	ObserveSummaryOperation(op, outcome string, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveSummaryOperation(string, string, time.Duration) {}
