package dto

import (
	"time"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/batch"
)

// --- Query DTOs ---

// StockPairQuery identifies one (product, warehouse) aggregate.
type StockPairQuery struct {
	ProductID   string `form:"productId" binding:"required"`
	WarehouseID string `form:"warehouseId" binding:"required"`
}

// BatchQuery holds the query parameters of GET /stock/batches.
type BatchQuery struct {
	StockPairQuery
	// ExpiringWithinDays narrows the result to batches expiring in the window.
	ExpiringWithinDays int `form:"expiringWithinDays" binding:"omitempty,min=1,max=3650"`
}

// BalanceListQuery holds the query parameters of GET /stock/balances.
// Exactly one of WarehouseID and ProductID selects the listing.
type BalanceListQuery struct {
	WarehouseID string `form:"warehouseId"`
	ProductID   string `form:"productId"`
	ExcludeZero *bool  `form:"excludeZero"`
}

// --- Response DTOs ---

// StockBalanceResponse represents stock balance in API responses.
type StockBalanceResponse struct {
	WarehouseID string     `json:"warehouseId"`
	ProductID   string     `json:"productId"`
	Quantity    int64      `json:"quantity"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// FromStockBalance converts an aggregate to response DTO.
func FromStockBalance(b balance.Item) StockBalanceResponse {
	// A pair that never received stock has no update time.
	var lastUpdated *time.Time
	if !b.LastUpdated.IsZero() {
		val := b.LastUpdated
		lastUpdated = &val
	}

	return StockBalanceResponse{
		WarehouseID: b.WarehouseID.String(),
		ProductID:   b.ProductID.String(),
		Quantity:    b.Quantity,
		LastUpdated: lastUpdated,
	}
}

// FromStockBalances converts a list of aggregates.
func FromStockBalances(items []balance.Item) []StockBalanceResponse {
	out := make([]StockBalanceResponse, len(items))
	for i, b := range items {
		out[i] = FromStockBalance(b)
	}
	return out
}

// BatchBalanceResponse represents one batch in API responses.
type BatchBalanceResponse struct {
	BatchNumber string      `json:"batchNumber"`
	Quantity    int64       `json:"quantity"`
	ExpiryDate  *time.Time  `json:"expiryDate,omitempty"`
	UnitPrice   types.Money `json:"unitPrice"`
	Currency    string      `json:"currency,omitempty"`
	Status      string      `json:"status,omitempty"`
}

// BatchListResponse lists the batches of one aggregate.
type BatchListResponse struct {
	ProductID   string                 `json:"productId"`
	WarehouseID string                 `json:"warehouseId"`
	Items       []BatchBalanceResponse `json:"items"`
}

// FromBatches converts projected batches.
func FromBatches(productID, warehouseID string, batches []batch.Balance) BatchListResponse {
	items := make([]BatchBalanceResponse, len(batches))
	for i, b := range batches {
		items[i] = BatchBalanceResponse{
			BatchNumber: b.BatchNumber,
			Quantity:    b.Quantity,
			ExpiryDate:  b.ExpiryDate,
			UnitPrice:   b.UnitPrice,
			Currency:    b.Currency,
			Status:      string(b.Status),
		}
	}
	return BatchListResponse{ProductID: productID, WarehouseID: warehouseID, Items: items}
}

// DriftResponse compares a live aggregate with its ledger replay.
type DriftResponse struct {
	ProductID   string `json:"productId"`
	WarehouseID string `json:"warehouseId"`
	Live        int64  `json:"live"`
	Replayed    int64  `json:"replayed"`
	InSync      bool   `json:"inSync"`
}

// FromDrift converts a drift report.
func FromDrift(d balance.Drift) DriftResponse {
	return DriftResponse{
		ProductID:   d.Pair.ProductID.String(),
		WarehouseID: d.Pair.WarehouseID.String(),
		Live:        d.Live,
		Replayed:    d.Replayed,
		InSync:      d.InSync(),
	}
}
