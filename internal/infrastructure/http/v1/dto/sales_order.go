package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/id"
	"factorydesk/internal/domain/documents/sales_order"
)

// OrderLineRequest is one product of an order.
type OrderLineRequest struct {
	ProductID string          `json:"productId" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// SalesOrderRequest creates or replaces an order. CompanyID may be omitted;
// the order then belongs to the sales person's company.
type SalesOrderRequest struct {
	CompanyID     *string            `json:"companyId"`
	CustomerID    string             `json:"customerId" binding:"required"`
	SalesPersonID *string            `json:"salesPersonId"`
	OrderDate     time.Time          `json:"orderDate" binding:"required"`
	Comment       string             `json:"comment"`
	Lines         []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
	// Version is required on update.
	Version int `json:"version"`
}

// ToDomain builds an order from the request.
func (r *SalesOrderRequest) ToDomain() (*sales_order.SalesOrder, error) {
	companyID, err := ParseOptionalID("companyId", r.CompanyID)
	if err != nil {
		return nil, err
	}
	customerID, err := ParseID("customerId", r.CustomerID)
	if err != nil {
		return nil, err
	}
	salesPersonID, err := ParseOptionalID("salesPersonId", r.SalesPersonID)
	if err != nil {
		return nil, err
	}

	o := sales_order.NewSalesOrder(companyID, customerID, salesPersonID, r.OrderDate)
	o.Comment = r.Comment
	o.Version = r.Version
	for _, l := range r.Lines {
		productID, err := ParseID("productId", l.ProductID)
		if err != nil {
			return nil, err
		}
		o.AddLine(productID, l.Quantity, l.Price)
	}
	return o, nil
}

// ChangeStatusRequest moves an order along its lifecycle.
type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ListOrdersQuery filters the order list.
type ListOrdersQuery struct {
	PaginationRequest
	CompanyID string     `form:"companyId"`
	From      *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Status    string     `form:"status"`
}

// ToFilter builds a repository filter for companyID.
func (q *ListOrdersQuery) ToFilter(companyID id.ID) (sales_order.ListFilter, error) {
	q.Defaults()
	f := sales_order.ListFilter{
		CompanyID: companyID,
		From:      q.From,
		To:        q.To,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if q.Status != "" {
		st := sales_order.Status(q.Status)
		if !st.Valid() {
			return f, apperror.NewValidation("unknown order status").
				WithDetail("field", "status").
				WithDetail("value", q.Status)
		}
		f.Status = &st
	}
	return f, nil
}
