package v1

import (
	"github.com/gin-gonic/gin"

	"factorydesk/internal/infrastructure/http/v1/middleware"
)

// CRUDRouteHandler is implemented by handlers of editable resources.
type CRUDRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
}

// RegisterCRUDRoutes registers the standard routes of a resource: reads need
// readPerm, changes need writePerm.
//
// Usage:
//
//	handler := handlers.NewProductionGroupHandler(base, service)
//	RegisterCRUDRoutes(production.Group("/groups"), handler, auth.PermGroupRead, auth.PermGroupWrite)
func RegisterCRUDRoutes(group *gin.RouterGroup, handler CRUDRouteHandler, readPerm, writePerm string) {
	group.GET("", middleware.RequirePermission(readPerm), handler.List)
	group.POST("", middleware.RequirePermission(writePerm), handler.Create)
	group.GET("/:id", middleware.RequirePermission(readPerm), handler.Get)
	group.PUT("/:id", middleware.RequirePermission(writePerm), handler.Update)
	group.DELETE("/:id", middleware.RequirePermission(writePerm), handler.Delete)
}
