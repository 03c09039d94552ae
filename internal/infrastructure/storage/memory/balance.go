package memory

import (
	"context"
	"slices"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
)

// BalanceRepo implements balance.Repository over a Store.
type BalanceRepo struct {
	s *Store
}

var _ balance.Repository = (*BalanceRepo)(nil)

// NewBalanceRepo creates a balance repository.
func NewBalanceRepo(s *Store) *BalanceRepo {
	return &BalanceRepo{s: s}
}

// Get implements balance.Repository.
func (r *BalanceRepo) Get(ctx context.Context, pair ledger.Pair) (balance.Item, bool, error) {
	var (
		item balance.Item
		ok   bool
	)
	r.s.view(ctx, func() {
		item, ok = r.s.items[pair]
	})
	return item, ok, nil
}

// CompareAndSwap implements balance.Repository.
func (r *BalanceRepo) CompareAndSwap(ctx context.Context, pair ledger.Pair, expected, next int64, at time.Time) (bool, error) {
	swapped := false
	err := r.s.update(ctx, func(t *txState) error {
		prev, existed := r.s.items[pair]
		if prev.Quantity != expected {
			return nil
		}

		r.s.items[pair] = balance.Item{
			ProductID:   pair.ProductID,
			WarehouseID: pair.WarehouseID,
			Quantity:    next,
			LastUpdated: at,
		}
		t.onRollback(func() {
			if existed {
				r.s.items[pair] = prev
			} else {
				delete(r.s.items, pair)
			}
		})
		swapped = true
		return nil
	})
	return swapped, err
}

// ListByWarehouse implements balance.Repository.
func (r *BalanceRepo) ListByWarehouse(ctx context.Context, warehouseID id.ID, f balance.ListFilter) ([]balance.Item, error) {
	out := r.collect(ctx, func(item balance.Item) bool {
		return item.WarehouseID == warehouseID && f.Matches(item)
	})
	slices.SortFunc(out, func(a, b balance.Item) int {
		return slices.Compare(a.ProductID[:], b.ProductID[:])
	})
	return out, nil
}

// ListByProduct implements balance.Repository.
func (r *BalanceRepo) ListByProduct(ctx context.Context, productID id.ID, f balance.ListFilter) ([]balance.Item, error) {
	out := r.collect(ctx, func(item balance.Item) bool {
		return item.ProductID == productID && f.Matches(item)
	})
	slices.SortFunc(out, func(a, b balance.Item) int {
		return slices.Compare(a.WarehouseID[:], b.WarehouseID[:])
	})
	return out, nil
}

// ListKeys implements balance.Repository.
func (r *BalanceRepo) ListKeys(ctx context.Context) ([]ledger.Pair, error) {
	var out []ledger.Pair
	r.s.view(ctx, func() {
		for pair := range r.s.items {
			out = append(out, pair)
		}
	})
	return out, nil
}

func (r *BalanceRepo) collect(ctx context.Context, keep func(balance.Item) bool) []balance.Item {
	var out []balance.Item
	r.s.view(ctx, func() {
		for _, item := range r.s.items {
			if keep(item) {
				out = append(out, item)
			}
		}
	})
	return out
}
