package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/auth"
	"stockledger/internal/infrastructure/http/v1/middleware"
)

// TransactionRouteHandler defines the ledger entry endpoints.
type TransactionRouteHandler interface {
	Submit(c *gin.Context)
	Get(c *gin.Context)
	List(c *gin.Context)
	Approve(c *gin.Context)
	Reject(c *gin.Context)
	RecordDelivery(c *gin.Context)
}

// StockRouteHandler defines the projection endpoints.
type StockRouteHandler interface {
	GetBalance(c *gin.Context)
	GetBatches(c *gin.Context)
	ListBalances(c *gin.Context)
	Verify(c *gin.Context)
}

// RegisterTransactionRoutes registers submission, history and lifecycle routes.
// Reads are open to any authenticated user; writes need the matching permission.
func RegisterTransactionRoutes(group *gin.RouterGroup, handler TransactionRouteHandler) {
	group.POST("", middleware.RequirePermission(auth.PermInventorySubmit), handler.Submit)
	group.GET("", handler.List)
	group.GET("/:id", handler.Get)
	group.POST("/:id/approve", middleware.RequirePermission(auth.PermInventoryApprove), handler.Approve)
	group.POST("/:id/reject", middleware.RequirePermission(auth.PermInventoryApprove), handler.Reject)
	group.POST("/:id/delivery", middleware.RequirePermission(auth.PermInventoryDeliver), handler.RecordDelivery)
}

// RegisterStockRoutes registers the read-only projection routes.
func RegisterStockRoutes(group *gin.RouterGroup, handler StockRouteHandler) {
	group.GET("/balance", handler.GetBalance)
	group.GET("/balances", handler.ListBalances)
	group.GET("/batches", handler.GetBatches)
	group.GET("/verify", handler.Verify)
}
