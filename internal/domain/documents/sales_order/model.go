// Package sales_order provides the SalesOrder document. Orders feed the
// daily production summaries: every write refreshes the summary rows of the
// products and days it touches.
package sales_order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
	StatusInProduction Status = "in_production"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:      {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:     {StatusInProduction, StatusCancelled},
	StatusInProduction: {StatusCompleted, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusInProduction, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SalesOrder is a customer order taken by a sales person.
type SalesOrder struct {
	ID     id.ID  `db:"id" json:"id"`
	Number string `db:"number" json:"number"`

	// CompanyID may be empty; the order then belongs to its sales person's
	// company.
	CompanyID     *id.ID `db:"company_id" json:"companyId,omitempty"`
	CustomerID    id.ID  `db:"customer_id" json:"customerId"`
	SalesPersonID *id.ID `db:"sales_person_id" json:"salesPersonId,omitempty"`

	// ResolvedCompanyID is the owning company after sales person
	// attribution. Read only.
	ResolvedCompanyID *id.ID `db:"resolved_company_id" json:"resolvedCompanyId,omitempty"`

	OrderDate time.Time `db:"order_date" json:"orderDate"`
	Status    Status    `db:"status" json:"status"`
	Comment   string    `db:"comment" json:"comment,omitempty"`

	TotalQuantity types.Quantity `db:"total_quantity" json:"totalQuantity"`
	TotalAmount   types.Money    `db:"total_amount" json:"totalAmount"`

	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one product of an order.
type Line struct {
	LineID    id.ID          `db:"line_id" json:"lineId"`
	LineNo    int            `db:"line_no" json:"lineNo"`
	ProductID id.ID          `db:"product_id" json:"productId"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`
	Price     types.Money    `db:"price" json:"price"`
	Amount    types.Money    `db:"amount" json:"amount"`
}

// NewSalesOrder creates a pending order without lines.
func NewSalesOrder(companyID *id.ID, customerID id.ID, salesPersonID *id.ID, orderDate time.Time) *SalesOrder {
	return &SalesOrder{
		ID:            id.New(),
		CompanyID:     companyID,
		CustomerID:    customerID,
		SalesPersonID: salesPersonID,
		OrderDate:     orderDate,
		Status:        StatusPending,
		Lines:         make([]Line, 0),
	}
}

// AddLine appends a line and recalculates totals.
func (o *SalesOrder) AddLine(productID id.ID, quantity, price decimal.Decimal) {
	o.Lines = append(o.Lines, Line{
		LineID:    id.New(),
		ProductID: productID,
		Quantity:  quantity,
		Price:     price,
	})
	o.Recalculate()
}

// Recalculate numbers the lines and refreshes amounts and totals.
func (o *SalesOrder) Recalculate() {
	o.TotalQuantity = decimal.Zero
	o.TotalAmount = decimal.Zero
	for i := range o.Lines {
		line := &o.Lines[i]
		if id.IsNil(line.LineID) {
			line.LineID = id.New()
		}
		line.LineNo = i + 1
		line.Amount = types.Round2(line.Quantity.Mul(line.Price))
		o.TotalQuantity = o.TotalQuantity.Add(line.Quantity)
		o.TotalAmount = o.TotalAmount.Add(line.Amount)
	}
}

// Validate checks the order before it is stored.
func (o *SalesOrder) Validate(_ context.Context) error {
	if id.IsNil(o.CustomerID) {
		return apperror.NewValidation("customer is required").
			WithDetail("field", "customerId")
	}
	if o.CompanyID == nil && o.SalesPersonID == nil {
		return apperror.NewValidation("company or sales person is required").
			WithDetail("field", "companyId")
	}
	if o.OrderDate.IsZero() {
		return apperror.NewValidation("order date is required").
			WithDetail("field", "orderDate")
	}
	if !o.Status.Valid() {
		return apperror.NewValidation("unknown order status").
			WithDetail("field", "status").
			WithDetail("value", string(o.Status))
	}
	if len(o.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}

	for i, line := range o.Lines {
		if id.IsNil(line.ProductID) {
			return apperror.NewValidation("product is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.Price.IsNegative() {
			return apperror.NewValidation("price must not be negative").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}

	return nil
}

// ProductIDs returns the distinct products of the order in line order.
func (o *SalesOrder) ProductIDs() []id.ID {
	seen := make(map[id.ID]struct{}, len(o.Lines))
	out := make([]id.ID, 0, len(o.Lines))
	for _, line := range o.Lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		out = append(out, line.ProductID)
	}
	return out
}

func (o *SalesOrder) snapshot() map[string]any {
	return map[string]any{
		"number":        o.Number,
		"status":        string(o.Status),
		"orderDate":     o.OrderDate.UTC().Format(time.RFC3339),
		"customerId":    o.CustomerID.String(),
		"salesPersonId": id.Deref(o.SalesPersonID).String(),
		"totalQuantity": o.TotalQuantity.String(),
		"totalAmount":   o.TotalAmount.String(),
		"lines":         len(o.Lines),
	}
}
