// Package production_group provides production groups: named product lists
// with shift timings, used to lay out the daily production summary.
package production_group

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
)

// ClockLayout is the format of shift timing fields.
const ClockLayout = "15:04"

// ProductionGroup groups products for shift and packing display. It never
// owns quantities.
type ProductionGroup struct {
	ID             id.ID          `db:"id" json:"id"`
	CompanyID      id.ID          `db:"company_id" json:"companyId"`
	Name           string         `db:"name" json:"name"`
	ProductIDs     []id.ID        `db:"product_ids" json:"productIds"`
	MouldingTime   *string        `db:"moulding_time" json:"mouldingTime,omitempty"`
	UnloadingTime  *string        `db:"unloading_time" json:"unloadingTime,omitempty"`
	ProductionLoss types.Quantity `db:"production_loss" json:"productionLoss"`
	Version        int            `db:"version" json:"version"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updatedAt"`
}

// NewProductionGroup creates a group for companyID.
func NewProductionGroup(companyID id.ID, name string) *ProductionGroup {
	return &ProductionGroup{
		ID:             id.New(),
		CompanyID:      companyID,
		Name:           strings.TrimSpace(name),
		ProductIDs:     []id.ID{},
		ProductionLoss: decimal.Zero,
		Version:        1,
	}
}

// Validate checks field formats. Product existence is checked by the service.
func (g *ProductionGroup) Validate(_ context.Context) error {
	if id.IsNil(g.CompanyID) {
		return apperror.NewValidation("companyId is required").WithDetail("field", "companyId")
	}
	if strings.TrimSpace(g.Name) == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	if len(g.Name) > 150 {
		return apperror.NewValidation("name is too long").WithDetail("field", "name")
	}

	seen := make(map[id.ID]struct{}, len(g.ProductIDs))
	for _, pid := range g.ProductIDs {
		if id.IsNil(pid) {
			return apperror.NewValidation("product id must not be empty").WithDetail("field", "productIds")
		}
		if _, dup := seen[pid]; dup {
			return apperror.NewValidation("product listed twice").
				WithDetail("field", "productIds").
				WithDetail("productId", pid.String())
		}
		seen[pid] = struct{}{}
	}

	if err := validateClock("mouldingTime", g.MouldingTime); err != nil {
		return err
	}
	if err := validateClock("unloadingTime", g.UnloadingTime); err != nil {
		return err
	}

	if g.ProductionLoss.IsNegative() {
		return apperror.NewValidation("productionLoss cannot be negative").WithDetail("field", "productionLoss")
	}
	return nil
}

// Contains reports whether the group lists productID.
func (g *ProductionGroup) Contains(productID id.ID) bool {
	for _, pid := range g.ProductIDs {
		if pid == productID {
			return true
		}
	}
	return false
}

func validateClock(field string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if _, err := time.Parse(ClockLayout, *v); err != nil {
		return apperror.NewValidation(field+" must be HH:MM").
			WithDetail("field", field).
			WithDetail("value", *v)
	}
	return nil
}
