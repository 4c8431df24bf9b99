// Package v1 provides HTTP API version 1.
package v1

import (
	"time"

	"github.com/gin-gonic/gin"

	"factorydesk/internal/domain/auth"
	"factorydesk/internal/infrastructure/http/v1/handlers"
	"factorydesk/internal/infrastructure/http/v1/middleware"
	"factorydesk/internal/infrastructure/metrics"
	"factorydesk/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Metrics records request counters and serves /metrics. Optional.
	Metrics *metrics.Metrics

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	Summaries handlers.SummaryService
	Groups    handlers.GroupService
	Orders    handlers.OrderService

	// AuditHistory serves /orders/:id/history. Optional.
	AuditHistory handlers.AuditHistory

	// Idempotency replays repeated order writes. Optional.
	Idempotency middleware.IdempotencyStore

	// HealthChecks are pinged by /health/ready, keyed by dependency name.
	HealthChecks map[string]handlers.Pinger

	// RequestTimeout bounds every API request. Zero disables it.
	RequestTimeout time.Duration
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
	}
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health and metrics endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator))
	if cfg.RequestTimeout > 0 {
		v1.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	base := handlers.NewBaseHandler()
	registerProductionRoutes(v1, base, cfg)
	registerOrderRoutes(v1, base, cfg)

	return router
}

// registerProductionRoutes registers summary and production group endpoints.
func registerProductionRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	production := rg.Group("/production")

	if cfg.Summaries != nil {
		h := handlers.NewProductionSummaryHandler(base, cfg.Summaries)
		read := middleware.RequirePermission(auth.PermSummaryRead)
		write := middleware.RequirePermission(auth.PermSummaryWrite)
		approve := middleware.RequirePermission(auth.PermSummaryApprove)

		summaries := production.Group("/summaries")
		summaries.GET("", read, h.ListByDate)
		summaries.POST("/update", write, h.Update)
		summaries.POST("/bulk-approve", approve, h.BulkApprove)
		summaries.POST("/refresh-day", write, h.RefreshDay)
		summaries.GET("/:productId", read, h.Get)
		summaries.POST("/:productId/approve", approve, h.Approve)
		summaries.POST("/:productId/recompute", write, h.Recompute)
	}

	if cfg.Groups != nil {
		h := handlers.NewProductionGroupHandler(base, cfg.Groups)
		RegisterCRUDRoutes(production.Group("/groups"), h, auth.PermGroupRead, auth.PermGroupWrite)
	}
}

// registerOrderRoutes registers sales order endpoints.
func registerOrderRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	if cfg.Orders == nil {
		return
	}

	h := handlers.NewSalesOrderHandler(base, cfg.Orders, cfg.AuditHistory)
	orders := rg.Group("/orders")
	if cfg.Idempotency != nil {
		orders.Use(middleware.Idempotency(cfg.Idempotency))
	}
	RegisterCRUDRoutes(orders, h, auth.PermOrderRead, auth.PermOrderWrite)
	orders.POST("/:id/status", middleware.RequirePermission(auth.PermOrderWrite), h.ChangeStatus)
	if cfg.AuditHistory != nil {
		orders.GET("/:id/history", middleware.RequirePermission(auth.PermOrderRead), h.History)
	}
}
