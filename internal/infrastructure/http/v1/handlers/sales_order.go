package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/id"
	"factorydesk/internal/domain/documents/sales_order"
	"factorydesk/internal/infrastructure/http/v1/dto"
	"factorydesk/internal/infrastructure/storage/postgres"
)

const defaultHistoryLimit = 50

// OrderService manages sales orders.
type OrderService interface {
	Create(ctx context.Context, o *sales_order.SalesOrder) error
	Update(ctx context.Context, o *sales_order.SalesOrder) error
	Delete(ctx context.Context, orderID id.ID) error
	ChangeStatus(ctx context.Context, orderID id.ID, next sales_order.Status) (*sales_order.SalesOrder, error)
	Get(ctx context.Context, orderID id.ID) (*sales_order.SalesOrder, error)
	List(ctx context.Context, filter sales_order.ListFilter) ([]*sales_order.SalesOrder, int, error)
}

// AuditHistory reads recorded changes of an entity.
type AuditHistory interface {
	History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]postgres.AuditRecord, error)
}

// SalesOrderHandler handles sales order HTTP requests.
type SalesOrderHandler struct {
	*BaseHandler
	service OrderService
	history AuditHistory
}

// NewSalesOrderHandler creates a sales order handler. history may be nil.
func NewSalesOrderHandler(base *BaseHandler, service OrderService, history AuditHistory) *SalesOrderHandler {
	return &SalesOrderHandler{BaseHandler: base, service: service, history: history}
}

// List handles GET /orders
func (h *SalesOrderHandler) List(c *gin.Context) {
	var q dto.ListOrdersQuery
	if !h.BindQuery(c, &q) {
		return
	}
	companyID, ok := h.CompanyID(c, q.CompanyID)
	if !ok {
		return
	}
	filter, err := q.ToFilter(companyID)
	if err != nil {
		h.Error(c, err)
		return
	}

	orders, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{
		Items:      orders,
		TotalCount: int64(total),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// Create handles POST /orders
func (h *SalesOrderHandler) Create(c *gin.Context) {
	var req dto.SalesOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	o, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Create(c.Request.Context(), o); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, o)
}

// Get handles GET /orders/:id
func (h *SalesOrderHandler) Get(c *gin.Context) {
	orderID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	o, err := h.service.Get(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, o)
}

// Update handles PUT /orders/:id
func (h *SalesOrderHandler) Update(c *gin.Context) {
	orderID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.SalesOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if req.Version < 1 {
		h.Error(c, apperror.NewValidation("version is required").WithDetail("field", "version"))
		return
	}
	o, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}
	o.ID = orderID

	if err := h.service.Update(c.Request.Context(), o); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, o)
}

// Delete handles DELETE /orders/:id
func (h *SalesOrderHandler) Delete(c *gin.Context) {
	orderID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), orderID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// ChangeStatus handles POST /orders/:id/status
func (h *SalesOrderHandler) ChangeStatus(c *gin.Context) {
	orderID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.ChangeStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}

	o, err := h.service.ChangeStatus(c.Request.Context(), orderID, sales_order.Status(req.Status))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, o)
}

// History handles GET /orders/:id/history
func (h *SalesOrderHandler) History(c *gin.Context) {
	orderID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var q dto.HistoryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultHistoryLimit
	}

	// Get enforces company access before the log is read.
	if _, err := h.service.Get(c.Request.Context(), orderID); err != nil {
		h.Error(c, err)
		return
	}
	records, err := h.history.History(c.Request.Context(), sales_order.EntityName, orderID, q.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAuditRecords(records))
}
