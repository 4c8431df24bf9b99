package dto

import (
	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/types"
	"factorydesk/internal/domain/registers/production_summary"
)

// SummaryQuery selects a day. CompanyID is honoured for super admins only.
type SummaryQuery struct {
	Date      string `form:"date"`
	CompanyID string `form:"companyId"`
}

// UpdateSummaryRequest is the update-summary body. Absent inputs keep their
// stored values; an explicit null resets them.
type UpdateSummaryRequest struct {
	CompanyID     string               `json:"companyId"`
	ProductID     string               `json:"productId" binding:"required"`
	Date          string               `json:"date" binding:"required"`
	PhysicalStock types.OptionalNumber `json:"physicalStock"`
	BatchAdjusted types.OptionalNumber `json:"batchAdjusted"`
	QtyPerBatch   types.OptionalNumber `json:"qtyPerBatch"`
	Status        *string              `json:"status"`
}

// ToDomain converts the body to a service request.
func (r *UpdateSummaryRequest) ToDomain() (production_summary.UpdateRequest, error) {
	req := production_summary.UpdateRequest{
		Inputs: production_summary.InputsPatch{
			PhysicalStock: r.PhysicalStock,
			BatchAdjusted: r.BatchAdjusted,
			QtyPerBatch:   r.QtyPerBatch,
		},
	}
	if r.Status != nil {
		st := production_summary.Status(*r.Status)
		if !st.Valid() {
			return req, apperror.NewValidation("unknown summary status").
				WithDetail("field", "status").
				WithDetail("value", *r.Status)
		}
		req.Status = &st
	}
	return req, nil
}

// BulkApproveRequest approves several products of one day.
type BulkApproveRequest struct {
	CompanyID  string   `json:"companyId"`
	Date       string   `json:"date" binding:"required"`
	ProductIDs []string `json:"productIds" binding:"required,min=1"`
}

// RefreshDayRequest recomputes every product of one day.
type RefreshDayRequest struct {
	CompanyID string `json:"companyId"`
	Date      string `json:"date" binding:"required"`
}
