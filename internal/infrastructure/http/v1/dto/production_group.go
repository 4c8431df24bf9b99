package dto

import (
	"github.com/shopspring/decimal"

	"factorydesk/internal/core/id"
	"factorydesk/internal/domain/catalogs/production_group"
)

// ProductionGroupRequest creates or replaces a production group.
type ProductionGroupRequest struct {
	CompanyID      string          `json:"companyId"`
	Name           string          `json:"name" binding:"required"`
	ProductIDs     []string        `json:"productIds"`
	MouldingTime   *string         `json:"mouldingTime"`
	UnloadingTime  *string         `json:"unloadingTime"`
	ProductionLoss decimal.Decimal `json:"productionLoss"`
	// Version is required on update.
	Version int `json:"version"`
}

// ToDomain builds a group owned by companyID.
func (r *ProductionGroupRequest) ToDomain(companyID id.ID) (*production_group.ProductionGroup, error) {
	productIDs, err := ParseIDs("productIds", r.ProductIDs)
	if err != nil {
		return nil, err
	}

	g := production_group.NewProductionGroup(companyID, r.Name)
	g.ProductIDs = productIDs
	g.MouldingTime = emptyToNil(r.MouldingTime)
	g.UnloadingTime = emptyToNil(r.UnloadingTime)
	g.ProductionLoss = r.ProductionLoss
	if r.Version > 0 {
		g.Version = r.Version
	}
	return g, nil
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
