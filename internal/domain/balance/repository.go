// Package balance maintains the per-(product, warehouse) stock aggregate.
// The aggregate is a projection of the ledger: it must always equal a replay
// of the approved entries referencing the pair.
package balance

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

// Item is the stock aggregate for one (product, warehouse) pair.
type Item struct {
	ProductID   id.ID     `db:"product_id" json:"product_id"`
	WarehouseID id.ID     `db:"warehouse_id" json:"warehouse_id"`
	Quantity    int64     `db:"quantity" json:"quantity"`
	LastUpdated time.Time `db:"last_updated" json:"last_updated"`
}

// Pair returns the aggregate key.
func (i Item) Pair() ledger.Pair {
	return ledger.Pair{ProductID: i.ProductID, WarehouseID: i.WarehouseID}
}

// Repository stores aggregates. Only the Projector writes through it.
type Repository interface {
	// Get returns the aggregate and whether it exists.
	Get(ctx context.Context, pair ledger.Pair) (Item, bool, error)

	// CompareAndSwap sets quantity to next when the stored quantity equals
	// expected. A missing aggregate counts as quantity 0 and is created.
	// It reports false when the stored value differs.
	CompareAndSwap(ctx context.Context, pair ledger.Pair, expected, next int64, at time.Time) (bool, error)

	// ListByWarehouse returns aggregates of one warehouse ordered by product.
	ListByWarehouse(ctx context.Context, warehouseID id.ID, f ListFilter) ([]Item, error)

	// ListByProduct returns aggregates of one product ordered by warehouse.
	ListByProduct(ctx context.Context, productID id.ID, f ListFilter) ([]Item, error)

	// ListKeys returns every stored pair.
	ListKeys(ctx context.Context) ([]ledger.Pair, error)
}

// ListFilter narrows aggregate listings.
type ListFilter struct {
	ProductIDs  []id.ID
	ExcludeZero bool
}

// Matches reports whether item passes the filter.
func (f ListFilter) Matches(item Item) bool {
	if f.ExcludeZero && item.Quantity == 0 {
		return false
	}
	if len(f.ProductIDs) == 0 {
		return true
	}
	for _, p := range f.ProductIDs {
		if p == item.ProductID {
			return true
		}
	}
	return false
}
