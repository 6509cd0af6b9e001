// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmastock/internal/infrastructure/http/v1/handlers"
	"pharmastock/internal/infrastructure/http/v1/middleware"
	"pharmastock/pkg/logger"
)

// RouterConfig holds the router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Engine records movements
	Engine handlers.MovementExecutor

	// Audit records and serves the audit trail. Optional.
	Audit handlers.AuditLog

	// Idempotency stores responses keyed by X-Idempotency-Key. Nil disables it.
	Idempotency middleware.IdempotencyStore

	// AuditRoles restricts the audit trail to these roles when set
	AuditRoles []string

	// DB is checked by the readiness probe
	DB handlers.Pinger

	// ServiceName names the server spans. Empty disables request tracing.
	ServiceName string

	// Metrics records request and movement metrics. Optional.
	Metrics Metrics
}

// Metrics is implemented by *telemetry.Metrics.
type Metrics interface {
	middleware.RequestObserver
	handlers.MovementObserver
	Handler() http.Handler
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	if cfg.ServiceName != "" {
		router.Use(middleware.Tracing(cfg.ServiceName))
	}
	router.Use(middleware.Trace())
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{"database": cfg.DB})
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator))
	v1.Use(middleware.SpanIdentity())
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}

	baseHandler := handlers.NewBaseHandler()

	movementHandler := handlers.NewMovementHandler(baseHandler, cfg.Engine, cfg.Audit)
	if cfg.Metrics != nil {
		movementHandler.WithObserver(cfg.Metrics)
	}
	v1.POST("/movements", movementHandler.Create)

	if cfg.Audit != nil {
		auditHandler := handlers.NewAuditHandler(baseHandler, cfg.Audit)
		audit := v1.Group("/audit")
		if len(cfg.AuditRoles) > 0 {
			audit.Use(middleware.RequireRole(cfg.AuditRoles...))
		}
		audit.GET("/:entityType/:entityId", auditHandler.History)
	}

	return router
}
