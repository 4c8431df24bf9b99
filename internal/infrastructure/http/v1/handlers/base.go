package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"factorydesk/internal/core/apperror"
	appctx "factorydesk/internal/core/context"
	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
	"factorydesk/internal/infrastructure/http/v1/dto"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers err on the Gin context and aborts the request. The JSON
// response is written by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// PathID parses the path parameter name as an identifier.
func (h *BaseHandler) PathID(c *gin.Context, name string) (id.ID, bool) {
	v, err := dto.ParseID(name, c.Param(name))
	if err != nil {
		h.Error(c, err)
		return id.Nil(), false
	}
	return v, true
}

// CompanyID resolves the company a request acts on. Users are pinned to
// their own company; super admins may name another one.
func (h *BaseHandler) CompanyID(c *gin.Context, requested string) (id.ID, bool) {
	user := appctx.GetUser(c.Request.Context())

	if requested != "" && user != nil && user.IsSuperAdmin {
		v, err := dto.ParseID("companyId", requested)
		if err != nil {
			h.Error(c, err)
			return id.Nil(), false
		}
		return v, true
	}

	if user == nil || id.IsNil(user.CompanyID) {
		h.Error(c, apperror.NewValidation("companyId is required").WithDetail("field", "companyId"))
		return id.Nil(), false
	}
	if requested != "" && requested != user.CompanyID.String() {
		h.Error(c, apperror.NewForbidden("access to another company is not allowed"))
		return id.Nil(), false
	}
	return user.CompanyID, true
}

// Day parses a YYYY-MM-DD date in loc. An empty value means today.
func (h *BaseHandler) Day(c *gin.Context, raw string, loc *time.Location, now time.Time) (types.Day, bool) {
	if raw == "" {
		return types.DayOf(now, loc), true
	}
	d, err := types.ParseDay(raw, loc)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid date, expected YYYY-MM-DD").
			WithDetail("field", "date").
			WithDetail("value", raw))
		return types.Day{}, false
	}
	return d, true
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// NoContent sends 204 response.
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
