package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
	"factorydesk/internal/domain/registers/production_summary"
	"factorydesk/internal/infrastructure/http/v1/dto"
)

// SummaryService is what the summary endpoints need from the aggregator.
type SummaryService interface {
	Location() *time.Location
	GetByDate(ctx context.Context, companyID id.ID, day types.Day) (*production_summary.DayView, error)
	GetSummary(ctx context.Context, key production_summary.Key) (*production_summary.DailyProductSummary, error)
	UpdateSummary(ctx context.Context, key production_summary.Key, req production_summary.UpdateRequest) (*production_summary.DailyProductSummary, error)
	Approve(ctx context.Context, key production_summary.Key) (*production_summary.DailyProductSummary, error)
	BulkApprove(ctx context.Context, companyID id.ID, day types.Day, productIDs []id.ID) (*production_summary.BulkResult, error)
	Recompute(ctx context.Context, key production_summary.Key) (*production_summary.DailyProductSummary, error)
	RefreshDay(ctx context.Context, companyID id.ID, day types.Day) (*production_summary.RefreshResult, error)
}

// ProductionSummaryHandler serves daily product summaries.
type ProductionSummaryHandler struct {
	*BaseHandler
	service SummaryService
	now     func() time.Time
}

// NewProductionSummaryHandler creates a summary handler.
func NewProductionSummaryHandler(base *BaseHandler, service SummaryService) *ProductionSummaryHandler {
	return &ProductionSummaryHandler{
		BaseHandler: base,
		service:     service,
		now:         time.Now,
	}
}

// ListByDate returns the day's summaries laid out by production group.
// GET /production/summaries?date=
func (h *ProductionSummaryHandler) ListByDate(c *gin.Context) {
	var q dto.SummaryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	companyID, ok := h.CompanyID(c, q.CompanyID)
	if !ok {
		return
	}
	day, ok := h.Day(c, q.Date, h.service.Location(), h.now())
	if !ok {
		return
	}

	view, err := h.service.GetByDate(c.Request.Context(), companyID, day)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, view)
}

// Get returns one summary row.
// GET /production/summaries/:productId?date=
func (h *ProductionSummaryHandler) Get(c *gin.Context) {
	key, ok := h.pathKey(c)
	if !ok {
		return
	}

	row, err := h.service.GetSummary(c.Request.Context(), key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, row)
}

// Update applies production inputs and an optional status change.
// POST /production/summaries/update
func (h *ProductionSummaryHandler) Update(c *gin.Context) {
	var req dto.UpdateSummaryRequest
	if !h.BindJSON(c, &req) {
		return
	}
	companyID, ok := h.CompanyID(c, req.CompanyID)
	if !ok {
		return
	}
	productID, err := dto.ParseID("productId", req.ProductID)
	if err != nil {
		h.Error(c, err)
		return
	}
	day, ok := h.Day(c, req.Date, h.service.Location(), h.now())
	if !ok {
		return
	}
	update, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}

	key := production_summary.Key{CompanyID: companyID, ProductID: productID, Date: day}
	row, err := h.service.UpdateSummary(c.Request.Context(), key, update)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, row)
}

// Approve approves one summary row.
// POST /production/summaries/:productId/approve?date=
func (h *ProductionSummaryHandler) Approve(c *gin.Context) {
	key, ok := h.pathKey(c)
	if !ok {
		return
	}

	row, err := h.service.Approve(c.Request.Context(), key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, row)
}

// BulkApprove approves several products of one day. Items fail
// independently.
// POST /production/summaries/bulk-approve
func (h *ProductionSummaryHandler) BulkApprove(c *gin.Context) {
	var req dto.BulkApproveRequest
	if !h.BindJSON(c, &req) {
		return
	}
	companyID, ok := h.CompanyID(c, req.CompanyID)
	if !ok {
		return
	}
	day, ok := h.Day(c, req.Date, h.service.Location(), h.now())
	if !ok {
		return
	}
	productIDs, err := dto.ParseIDs("productIds", req.ProductIDs)
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.BulkApprove(c.Request.Context(), companyID, day, productIDs)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Recompute rebuilds one row from the orders.
// POST /production/summaries/:productId/recompute?date=
func (h *ProductionSummaryHandler) Recompute(c *gin.Context) {
	key, ok := h.pathKey(c)
	if !ok {
		return
	}

	row, err := h.service.Recompute(c.Request.Context(), key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, row)
}

// RefreshDay rebuilds every row of one day.
// POST /production/summaries/refresh-day
func (h *ProductionSummaryHandler) RefreshDay(c *gin.Context) {
	var req dto.RefreshDayRequest
	if !h.BindJSON(c, &req) {
		return
	}
	companyID, ok := h.CompanyID(c, req.CompanyID)
	if !ok {
		return
	}
	day, ok := h.Day(c, req.Date, h.service.Location(), h.now())
	if !ok {
		return
	}

	result, err := h.service.RefreshDay(c.Request.Context(), companyID, day)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// pathKey builds a key from :productId and the date and companyId query
// parameters.
func (h *ProductionSummaryHandler) pathKey(c *gin.Context) (production_summary.Key, bool) {
	productID, ok := h.PathID(c, "productId")
	if !ok {
		return production_summary.Key{}, false
	}
	var q dto.SummaryQuery
	if !h.BindQuery(c, &q) {
		return production_summary.Key{}, false
	}
	companyID, ok := h.CompanyID(c, q.CompanyID)
	if !ok {
		return production_summary.Key{}, false
	}
	day, ok := h.Day(c, q.Date, h.service.Location(), h.now())
	if !ok {
		return production_summary.Key{}, false
	}
	return production_summary.Key{CompanyID: companyID, ProductID: productID, Date: day}, true
}
