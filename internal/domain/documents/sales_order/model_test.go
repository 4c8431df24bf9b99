package sales_order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/id"
)

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusInProduction, false},
		{StatusApproved, StatusInProduction, true},
		{StatusApproved, StatusCancelled, true},
		{StatusApproved, StatusPending, false},
		{StatusInProduction, StatusCompleted, true},
		{StatusInProduction, StatusCancelled, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusRejected, StatusApproved, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.False(t, StatusApproved.IsTerminal())
	assert.False(t, Status("archived").Valid())
}

func TestSalesOrder_Recalculate(t *testing.T) {
	company := id.New()
	o := NewSalesOrder(&company, id.New(), nil, time.Now())
	o.AddLine(id.New(), decimal.RequireFromString("2.5"), decimal.RequireFromString("10.333"))
	o.AddLine(id.New(), decimal.NewFromInt(4), decimal.NewFromInt(3))

	assert.Equal(t, 2, o.Lines[1].LineNo)
	assert.Equal(t, "25.83", o.Lines[0].Amount.String())
	assert.Equal(t, "6.5", o.TotalQuantity.String())
	assert.Equal(t, "37.83", o.TotalAmount.String())
}

func TestSalesOrder_Validate(t *testing.T) {
	company := id.New()
	valid := func() *SalesOrder {
		o := NewSalesOrder(&company, id.New(), nil, time.Now())
		o.AddLine(id.New(), decimal.NewFromInt(1), decimal.Zero)
		return o
	}

	assert.NoError(t, valid().Validate(context.Background()))

	tests := map[string]func(o *SalesOrder){
		"no customer":         func(o *SalesOrder) { o.CustomerID = id.Nil() },
		"no company":          func(o *SalesOrder) { o.CompanyID = nil },
		"no date":             func(o *SalesOrder) { o.OrderDate = time.Time{} },
		"no lines":            func(o *SalesOrder) { o.Lines = nil },
		"zero quantity":       func(o *SalesOrder) { o.Lines[0].Quantity = decimal.Zero },
		"negative price":      func(o *SalesOrder) { o.Lines[0].Price = decimal.NewFromInt(-1) },
		"missing product":     func(o *SalesOrder) { o.Lines[0].ProductID = id.Nil() },
		"unknown status text": func(o *SalesOrder) { o.Status = "draft" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			o := valid()
			mutate(o)
			assert.True(t, apperror.IsValidation(o.Validate(context.Background())))
		})
	}

	person := id.New()
	o := valid()
	o.CompanyID = nil
	o.SalesPersonID = &person
	assert.NoError(t, o.Validate(context.Background()), "sales person attributes the company")
}
