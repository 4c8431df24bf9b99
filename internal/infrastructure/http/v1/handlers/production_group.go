package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/id"
	"factorydesk/internal/domain/catalogs/production_group"
	"factorydesk/internal/infrastructure/http/v1/dto"
)

// GroupService manages production groups.
type GroupService interface {
	Create(ctx context.Context, g *production_group.ProductionGroup) error
	Update(ctx context.Context, g *production_group.ProductionGroup) error
	Delete(ctx context.Context, companyID, groupID id.ID) error
	Get(ctx context.Context, companyID, groupID id.ID) (*production_group.ProductionGroup, error)
	List(ctx context.Context, companyID id.ID) ([]*production_group.ProductionGroup, error)
}

// ProductionGroupHandler handles production group CRUD.
type ProductionGroupHandler struct {
	*BaseHandler
	service GroupService
}

// NewProductionGroupHandler creates a group handler.
func NewProductionGroupHandler(base *BaseHandler, service GroupService) *ProductionGroupHandler {
	return &ProductionGroupHandler{BaseHandler: base, service: service}
}

// List handles GET /production/groups
func (h *ProductionGroupHandler) List(c *gin.Context) {
	companyID, ok := h.CompanyID(c, c.Query("companyId"))
	if !ok {
		return
	}

	groups, err := h.service.List(c.Request.Context(), companyID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: groups, TotalCount: int64(len(groups))})
}

// Create handles POST /production/groups
func (h *ProductionGroupHandler) Create(c *gin.Context) {
	var req dto.ProductionGroupRequest
	if !h.BindJSON(c, &req) {
		return
	}
	companyID, ok := h.CompanyID(c, req.CompanyID)
	if !ok {
		return
	}
	g, err := req.ToDomain(companyID)
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Create(c.Request.Context(), g); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, g)
}

// Get handles GET /production/groups/:id
func (h *ProductionGroupHandler) Get(c *gin.Context) {
	groupID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	companyID, ok := h.CompanyID(c, c.Query("companyId"))
	if !ok {
		return
	}

	g, err := h.service.Get(c.Request.Context(), companyID, groupID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, g)
}

// Update handles PUT /production/groups/:id
func (h *ProductionGroupHandler) Update(c *gin.Context) {
	groupID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.ProductionGroupRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if req.Version < 1 {
		h.Error(c, apperror.NewValidation("version is required").WithDetail("field", "version"))
		return
	}
	companyID, ok := h.CompanyID(c, req.CompanyID)
	if !ok {
		return
	}
	g, err := req.ToDomain(companyID)
	if err != nil {
		h.Error(c, err)
		return
	}
	g.ID = groupID

	if err := h.service.Update(c.Request.Context(), g); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, g)
}

// Delete handles DELETE /production/groups/:id
func (h *ProductionGroupHandler) Delete(c *gin.Context) {
	groupID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	companyID, ok := h.CompanyID(c, c.Query("companyId"))
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), companyID, groupID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
