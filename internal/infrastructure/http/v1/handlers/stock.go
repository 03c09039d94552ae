package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/batch"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// StockHandler serves the balance and batch projections.
type StockHandler struct {
	*BaseHandler
	balances *balance.Projector
	batches  *batch.Projector
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, balances *balance.Projector, batches *batch.Projector) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		balances:    balances,
		batches:     batches,
	}
}

// GetBalance handles GET /stock/balance
func (h *StockHandler) GetBalance(c *gin.Context) {
	productID, warehouseID, ok := h.bindPair(c)
	if !ok {
		return
	}
	item, err := h.balances.Balance(c.Request.Context(), productID, warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromStockBalance(item))
}

// GetBatches handles GET /stock/batches
func (h *StockHandler) GetBatches(c *gin.Context) {
	var q dto.BatchQuery
	if !h.BindQuery(c, &q) {
		return
	}
	productID, warehouseID, err := parsePair(q.StockPairQuery)
	if err != nil {
		h.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	var batches []batch.Balance
	if q.ExpiringWithinDays > 0 {
		window := time.Duration(q.ExpiringWithinDays) * 24 * time.Hour
		batches, err = h.batches.ExpiringWithin(ctx, productID, warehouseID, window)
	} else {
		batches, err = h.batches.ProjectBatches(ctx, productID, warehouseID)
	}
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromBatches(q.ProductID, q.WarehouseID, batches))
}

// ListBalances handles GET /stock/balances
func (h *StockHandler) ListBalances(c *gin.Context) {
	var q dto.BalanceListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	if (q.WarehouseID == "") == (q.ProductID == "") {
		h.Error(c, apperror.NewValidation("exactly one of warehouseId and productId is required"))
		return
	}

	filter := balance.ListFilter{ExcludeZero: q.ExcludeZero == nil || *q.ExcludeZero}
	ctx := c.Request.Context()

	var (
		items []balance.Item
		err   error
	)
	if q.WarehouseID != "" {
		var warehouseID id.ID
		if warehouseID, err = dto.ParseID("warehouseId", q.WarehouseID); err != nil {
			h.Error(c, err)
			return
		}
		items, err = h.balances.ListByWarehouse(ctx, warehouseID, filter)
	} else {
		var productID id.ID
		if productID, err = dto.ParseID("productId", q.ProductID); err != nil {
			h.Error(c, err)
			return
		}
		items, err = h.balances.ListByProduct(ctx, productID, filter)
	}
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ItemsResponse[dto.StockBalanceResponse]{Items: dto.FromStockBalances(items)})
}

// Verify handles GET /stock/verify
func (h *StockHandler) Verify(c *gin.Context) {
	productID, warehouseID, ok := h.bindPair(c)
	if !ok {
		return
	}
	drift, err := h.balances.Verify(c.Request.Context(), productID, warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDrift(drift))
}

func (h *StockHandler) bindPair(c *gin.Context) (id.ID, id.ID, bool) {
	var q dto.StockPairQuery
	if !h.BindQuery(c, &q) {
		return id.Nil(), id.Nil(), false
	}
	productID, warehouseID, err := parsePair(q)
	if err != nil {
		h.Error(c, err)
		return id.Nil(), id.Nil(), false
	}
	return productID, warehouseID, true
}

func parsePair(q dto.StockPairQuery) (id.ID, id.ID, error) {
	productID, err := dto.ParseID("productId", q.ProductID)
	if err != nil {
		return id.Nil(), id.Nil(), err
	}
	warehouseID, err := dto.ParseID("warehouseId", q.WarehouseID)
	if err != nil {
		return id.Nil(), id.Nil(), err
	}
	return productID, warehouseID, nil
}
