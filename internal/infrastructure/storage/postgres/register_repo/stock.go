// Package register_repo provides the PostgreSQL stock aggregate store.
package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const stockItemsTable = "inv_items"

var itemColumns = []string{"product_id", "warehouse_id", "quantity", "last_updated"}

// StockRepo implements balance.Repository over inv_items.
//
// Quantities only change through CompareAndSwap, a conditional UPDATE (or
// INSERT for a first movement) that affects no row when a concurrent writer
// got there first.
type StockRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ balance.Repository = (*StockRepo)(nil)

// NewStockRepo creates a new stock aggregate repository.
func NewStockRepo(txm *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Get returns the aggregate of pair.
func (r *StockRepo) Get(ctx context.Context, pair ledger.Pair) (balance.Item, bool, error) {
	sql, args, err := r.builder.Select(itemColumns...).
		From(stockItemsTable).
		Where(squirrel.Eq{"product_id": pair.ProductID, "warehouse_id": pair.WarehouseID}).
		ToSql()
	if err != nil {
		return balance.Item{}, false, fmt.Errorf("build query: %w", err)
	}

	var items []balance.Item
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return balance.Item{}, false, fmt.Errorf("get stock item %s: %w", pair, postgres.MapError(err))
	}
	if len(items) == 0 {
		return balance.Item{ProductID: pair.ProductID, WarehouseID: pair.WarehouseID}, false, nil
	}
	return items[0], true, nil
}

// CompareAndSwap implements balance.Repository.
func (r *StockRepo) CompareAndSwap(ctx context.Context, pair ledger.Pair, expected, next int64, at time.Time) (bool, error) {
	q := r.casQuery(pair, expected, next, at)
	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build cas: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("cas stock item %s: %w", pair, postgres.MapError(err))
	}
	return tag.RowsAffected() == 1, nil
}

// casQuery builds the conditional write. A stored row counts as expected
// only when its quantity matches; a missing row matches expected == 0.
func (r *StockRepo) casQuery(pair ledger.Pair, expected, next int64, at time.Time) squirrel.Sqlizer {
	if expected == 0 {
		return r.builder.Insert(stockItemsTable).
			Columns(itemColumns...).
			Values(pair.ProductID, pair.WarehouseID, next, at).
			Suffix("ON CONFLICT (product_id, warehouse_id) DO UPDATE SET quantity = EXCLUDED.quantity, last_updated = EXCLUDED.last_updated WHERE " + stockItemsTable + ".quantity = 0")
	}
	return r.builder.Update(stockItemsTable).
		Set("quantity", next).
		Set("last_updated", at).
		Where(squirrel.Eq{
			"product_id":   pair.ProductID,
			"warehouse_id": pair.WarehouseID,
			"quantity":     expected,
		})
}

// ListByWarehouse implements balance.Repository.
func (r *StockRepo) ListByWarehouse(ctx context.Context, warehouseID id.ID, f balance.ListFilter) ([]balance.Item, error) {
	q := r.listQuery(f).Where(squirrel.Eq{"warehouse_id": warehouseID}).OrderBy("product_id")
	return r.list(ctx, q)
}

// ListByProduct implements balance.Repository.
func (r *StockRepo) ListByProduct(ctx context.Context, productID id.ID, f balance.ListFilter) ([]balance.Item, error) {
	q := r.listQuery(f).Where(squirrel.Eq{"product_id": productID}).OrderBy("warehouse_id")
	return r.list(ctx, q)
}

func (r *StockRepo) listQuery(f balance.ListFilter) squirrel.SelectBuilder {
	q := r.builder.Select(itemColumns...).From(stockItemsTable)
	if len(f.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"product_id": f.ProductIDs})
	}
	if f.ExcludeZero {
		q = q.Where(squirrel.Gt{"quantity": 0})
	}
	return q
}

func (r *StockRepo) list(ctx context.Context, q squirrel.SelectBuilder) ([]balance.Item, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []balance.Item
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list stock items: %w", postgres.MapError(err))
	}
	return items, nil
}

// ListKeys implements balance.Repository.
func (r *StockRepo) ListKeys(ctx context.Context) ([]ledger.Pair, error) {
	var pairs []ledger.Pair
	err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &pairs,
		`SELECT product_id, warehouse_id FROM `+stockItemsTable+` ORDER BY product_id, warehouse_id`)
	if err != nil {
		return nil, fmt.Errorf("list stock keys: %w", postgres.MapError(err))
	}
	return pairs, nil
}
