// Package production_summary maintains the per-product, per-day production
// summary: the sales aggregate read from orders, the batch figures derived
// from user inputs, and the approval state.
package production_summary

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
)

// Status is the approval state of a summary row. It is unrelated to the
// order status machine.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
)

// Valid reports whether s is a known summary status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved
}

// Key identifies a summary row.
type Key struct {
	CompanyID id.ID     `json:"companyId"`
	ProductID id.ID     `json:"productId"`
	Date      types.Day `json:"date"`
}

// Validate checks that every component of the key is set.
func (k Key) Validate() error {
	if id.IsNil(k.CompanyID) {
		return apperror.NewValidation("companyId is required")
	}
	if id.IsNil(k.ProductID) {
		return apperror.NewValidation("productId is required")
	}
	if k.Date.IsZero() {
		return apperror.NewValidation("date is required")
	}
	return nil
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.CompanyID, k.ProductID, k.Date)
}

// Less orders keys by company, date, product. Locks are taken in this order.
func (k Key) Less(o Key) bool {
	if k.CompanyID != o.CompanyID {
		return k.CompanyID.String() < o.CompanyID.String()
	}
	if k.Date != o.Date {
		return k.Date.Before(o.Date)
	}
	return k.ProductID.String() < o.ProductID.String()
}

// SalesBreakdownEntry is one sales person's share of the day's orders.
type SalesBreakdownEntry struct {
	SalesPersonID   id.ID          `json:"salesPersonId"`
	SalesPersonName string         `json:"salesPersonName"`
	TotalQuantity   types.Quantity `json:"totalQuantity"`
	OrderCount      int            `json:"orderCount"`
}

// DailyProductSummary is one row per product, day and company.
type DailyProductSummary struct {
	ID          id.ID     `db:"id" json:"id"`
	CompanyID   id.ID     `db:"company_id" json:"companyId"`
	ProductID   id.ID     `db:"product_id" json:"productId"`
	ProductName string    `db:"product_name" json:"productName,omitempty"`
	Date        types.Day `db:"date" json:"date"`

	SalesBreakdown []SalesBreakdownEntry `db:"sales_breakdown" json:"salesBreakdown"`
	TotalQuantity  types.Quantity        `db:"total_quantity" json:"totalQuantity"`
	TotalOrders    int                   `db:"total_orders" json:"totalOrders"`

	PhysicalStock types.Quantity `db:"physical_stock" json:"physicalStock"`
	BatchAdjusted types.Quantity `db:"batch_adjusted" json:"batchAdjusted"`
	QtyPerBatch   types.Quantity `db:"qty_per_batch" json:"qtyPerBatch"`

	ToBeProducedDay        types.Quantity `db:"to_be_produced_day" json:"toBeProducedDay"`
	ProductionFinalBatches types.Quantity `db:"production_final_batches" json:"productionFinalBatches"`
	ProduceBatches         types.Quantity `db:"produce_batches" json:"produceBatches"`
	ToBeProducedBatches    types.Quantity `db:"to_be_produced_batches" json:"toBeProducedBatches"`
	ExpiryShortage         types.Quantity `db:"expiry_shortage" json:"expiryShortage"`

	Status     Status     `db:"status" json:"status"`
	ApprovedBy *string    `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedAt *time.Time `db:"approved_at" json:"approvedAt,omitempty"`

	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewDailyProductSummary returns an empty pending row for key.
func NewDailyProductSummary(key Key) *DailyProductSummary {
	return &DailyProductSummary{
		ID:             id.New(),
		CompanyID:      key.CompanyID,
		ProductID:      key.ProductID,
		Date:           key.Date,
		SalesBreakdown: []SalesBreakdownEntry{},
		QtyPerBatch:    decimal.NewFromInt(1),
		Status:         StatusPending,
	}
}

// Key returns the row's composite key.
func (s *DailyProductSummary) Key() Key {
	return Key{CompanyID: s.CompanyID, ProductID: s.ProductID, Date: s.Date}
}

// Inputs returns the stored production inputs.
func (s *DailyProductSummary) Inputs() Inputs {
	return Inputs{
		PhysicalStock: s.PhysicalStock,
		BatchAdjusted: s.BatchAdjusted,
		QtyPerBatch:   s.QtyPerBatch,
	}
}

// SetBreakdown replaces the sales aggregate and its totals. Inputs and
// status are left alone.
func (s *DailyProductSummary) SetBreakdown(entries []SalesBreakdownEntry) {
	if entries == nil {
		entries = []SalesBreakdownEntry{}
	}
	s.SalesBreakdown = entries
	s.TotalQuantity = decimal.Zero
	s.TotalOrders = 0
	for _, e := range entries {
		s.TotalQuantity = s.TotalQuantity.Add(e.TotalQuantity)
		s.TotalOrders += e.OrderCount
	}
}

// SetInputs stores coerced inputs.
func (s *DailyProductSummary) SetInputs(in Inputs) {
	s.PhysicalStock = in.PhysicalStock
	s.BatchAdjusted = in.BatchAdjusted
	s.QtyPerBatch = in.QtyPerBatch
}

// Recalculate refreshes the derived figures from the totals and inputs.
func (s *DailyProductSummary) Recalculate() {
	d := Derive(s.TotalQuantity, s.Inputs())
	s.ToBeProducedDay = d.ToBeProducedDay
	s.ProductionFinalBatches = d.ProductionFinalBatches
	s.ProduceBatches = d.ProduceBatches
	s.ToBeProducedBatches = d.ToBeProducedBatches
	s.ExpiryShortage = d.ExpiryShortage
}

// MarkPending resets the approval.
func (s *DailyProductSummary) MarkPending() {
	s.Status = StatusPending
	s.ApprovedBy = nil
	s.ApprovedAt = nil
}

// MarkApproved records an approval by userID at now.
func (s *DailyProductSummary) MarkApproved(userID string, now time.Time) {
	s.Status = StatusApproved
	if userID != "" {
		s.ApprovedBy = &userID
	} else {
		s.ApprovedBy = nil
	}
	at := now.UTC()
	s.ApprovedAt = &at
}

// CheckTotals verifies that the totals equal the breakdown sums.
func (s *DailyProductSummary) CheckTotals() error {
	qty := decimal.Zero
	orders := 0
	for _, e := range s.SalesBreakdown {
		qty = qty.Add(e.TotalQuantity)
		orders += e.OrderCount
	}
	if !qty.Equal(s.TotalQuantity) || orders != s.TotalOrders {
		return fmt.Errorf("summary %s: totals %s/%d do not match breakdown %s/%d",
			s.Key(), s.TotalQuantity, s.TotalOrders, qty, orders)
	}
	return nil
}

// snapshot is the audited view of a row.
func (s *DailyProductSummary) snapshot() map[string]any {
	return map[string]any{
		"physicalStock":          s.PhysicalStock.String(),
		"batchAdjusted":          s.BatchAdjusted.String(),
		"qtyPerBatch":            s.QtyPerBatch.String(),
		"toBeProducedDay":        s.ToBeProducedDay.String(),
		"productionFinalBatches": s.ProductionFinalBatches.String(),
		"produceBatches":         s.ProduceBatches.String(),
		"expiryShortage":         s.ExpiryShortage.String(),
		"status":                 string(s.Status),
	}
}
