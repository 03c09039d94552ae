// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/transaction"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	Engine   *transaction.Engine
	Balances *balance.Projector
	Batches  *batch.Projector

	// Idempotency replays responses for repeated X-Idempotency-Key requests.
	// Nil disables the middleware.
	Idempotency middleware.IdempotencyStore

	// Backend names the storage backend for /health/info.
	Backend string
	// Pool is checked by /health/ready. Nil for the in-memory backend.
	Pool *postgres.Pool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!). Recovery runs inside ErrorHandler
	// so that a recovered panic still gets a JSON body.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.Backend, cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))

		// Runs after Auth so that keys are scoped to the user.
		if cfg.Idempotency != nil {
			protected.Use(middleware.Idempotency(cfg.Idempotency))
		}

		baseHandler := handlers.NewBaseHandler()
		RegisterTransactionRoutes(protected.Group("/transactions"), handlers.NewTransactionHandler(baseHandler, cfg.Engine))
		RegisterStockRoutes(protected.Group("/stock"), handlers.NewStockHandler(baseHandler, cfg.Balances, cfg.Batches))
	}

	return router
}
