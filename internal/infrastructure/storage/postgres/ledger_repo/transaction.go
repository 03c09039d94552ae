// Package ledger_repo provides PostgreSQL implementations of the ledger store
// and the procurement lookup.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	transactionsTable = "inv_transactions"
	entryEntity       = "inventory_transaction"
)

var entryColumns = []string{
	"id", "number", "type", "product_id", "source_warehouse_id", "target_warehouse_id",
	"quantity", "unit_price", "currency", "reference", "notes", "reason_code", "explanation",
	"actor_id", "created_at", "approval_status", "delivery_status", "delivery_details",
	"linked_request_id", "po_line_id", "approval_notes", "decided_by", "decided_at",
}

// TransactionRepo implements ledger.Repository over inv_transactions.
// Entries are append-only; only the status columns, the delivery payload and
// the decision fields are ever updated, each behind a status guard.
type TransactionRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ ledger.Repository = (*TransactionRepo)(nil)

// NewTransactionRepo creates a ledger repository.
func NewTransactionRepo(txm *postgres.TxManager) *TransactionRepo {
	return &TransactionRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append implements ledger.Repository.
func (r *TransactionRepo) Append(ctx context.Context, e *ledger.Entry) (id.ID, error) {
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}

	sql, args, err := r.insertQuery(e).ToSql()
	if err != nil {
		return id.Nil(), fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return id.Nil(), fmt.Errorf("insert entry: %w", postgres.MapError(err))
	}
	return e.ID, nil
}

func (r *TransactionRepo) insertQuery(e *ledger.Entry) squirrel.InsertBuilder {
	return r.builder.Insert(transactionsTable).
		Columns(entryColumns...).
		Values(
			e.ID, e.Number, e.Type, e.ProductID, e.SourceWarehouseID, e.TargetWarehouseID,
			e.Quantity, e.UnitPrice, e.Currency, e.Reference, e.Notes, e.ReasonCode, e.Explanation,
			e.ActorID, e.CreatedAt, e.ApprovalStatus, e.DeliveryStatus, e.DeliveryDetails,
			e.LinkedRequestID, e.POLineID, e.ApprovalNotes, e.DecidedBy, e.DecidedAt,
		)
}

// Get implements ledger.Repository.
func (r *TransactionRepo) Get(ctx context.Context, entryID id.ID) (*ledger.Entry, error) {
	sql, args, err := r.selectEntries().Where(squirrel.Eq{"id": entryID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var e ledger.Entry
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &e, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(entryEntity, entryID)
		}
		return nil, fmt.Errorf("get entry: %w", postgres.MapError(err))
	}
	return &e, nil
}

// ListByProductWarehouse implements ledger.Repository.
func (r *TransactionRepo) ListByProductWarehouse(ctx context.Context, productID, warehouseID id.ID) ([]*ledger.Entry, error) {
	q := r.selectEntries().
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.Or{
			squirrel.Eq{"source_warehouse_id": warehouseID},
			squirrel.Eq{"target_warehouse_id": warehouseID},
		}).
		OrderBy("created_at", "id")
	return r.selectAll(ctx, q)
}

// SetApprovalStatus implements ledger.Repository.
func (r *TransactionRepo) SetApprovalStatus(ctx context.Context, entryID id.ID, expected, next ledger.ApprovalStatus, change ledger.ApprovalChange) error {
	if !ledger.ValidApprovalTransition(expected, next) {
		return apperror.NewInvalidTransition(entryEntity, entryID, string(expected), string(next))
	}

	q := r.builder.Update(transactionsTable).
		Set("approval_status", next).
		Set("approval_notes", change.Notes).
		Set("decided_by", change.DecidedBy).
		Set("decided_at", change.DecidedAt).
		Where(squirrel.Eq{"id": entryID, "approval_status": expected})
	return r.guardedUpdate(ctx, q, entryID, string(next), func(e *ledger.Entry) string {
		return string(e.ApprovalStatus)
	})
}

// SetDeliveryStatus implements ledger.Repository. Details are merged with
// the stored payload using jsonb concatenation of the non-empty fields;
// a stored batch number or expiry date is kept, as in DeliveryDetails.Merge.
func (r *TransactionRepo) SetDeliveryStatus(ctx context.Context, entryID id.ID, expected, next ledger.DeliveryStatus, details *ledger.DeliveryDetails) error {
	if !ledger.ValidDeliveryTransition(expected, next) {
		return apperror.NewInvalidTransition(entryEntity, entryID, string(expected), string(next))
	}

	q := r.builder.Update(transactionsTable).
		Set("delivery_status", next).
		Where(squirrel.Eq{"id": entryID, "delivery_status": expected})
	if details != nil {
		q = q.Set("delivery_details", squirrel.Expr(mergeDeliveryDetails, details))
	}
	return r.guardedUpdate(ctx, q, entryID, string(next), func(e *ledger.Entry) string {
		return string(e.DeliveryStatus)
	})
}

const mergeDeliveryDetails = `COALESCE(delivery_details, '{}'::jsonb) || ?::jsonb ||
	jsonb_strip_nulls(jsonb_build_object(
		'batch_number', delivery_details->'batch_number',
		'expiry_date', delivery_details->'expiry_date'))`

// guardedUpdate runs a status-guarded update and explains a miss.
func (r *TransactionRepo) guardedUpdate(ctx context.Context, q squirrel.UpdateBuilder, entryID id.ID, next string, current func(*ledger.Entry) string) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update entry status: %w", postgres.MapError(err))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	stored, err := r.Get(ctx, entryID)
	if err != nil {
		return err
	}
	return apperror.NewInvalidTransition(entryEntity, entryID, current(stored), next)
}

// List implements ledger.Repository.
func (r *TransactionRepo) List(ctx context.Context, f ledger.Filter) ([]*ledger.Entry, int, error) {
	f = f.Normalize()
	where := filterWhere(f)

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").From(transactionsTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", postgres.MapError(err))
	}

	q := r.selectEntries().
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))
	items, err := r.selectAll(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// filterWhere translates f into a WHERE clause.
func filterWhere(f ledger.Filter) squirrel.And {
	where := squirrel.And{}
	if f.Type != "" {
		where = append(where, squirrel.Eq{"type": f.Type})
	}
	if f.ApprovalStatus != "" {
		where = append(where, squirrel.Eq{"approval_status": f.ApprovalStatus})
	}
	if f.DeliveryStatus != "" {
		where = append(where, squirrel.Eq{"delivery_status": f.DeliveryStatus})
	}
	if f.ProductID != nil {
		where = append(where, squirrel.Eq{"product_id": *f.ProductID})
	}
	if f.WarehouseID != nil {
		where = append(where, squirrel.Or{
			squirrel.Eq{"source_warehouse_id": *f.WarehouseID},
			squirrel.Eq{"target_warehouse_id": *f.WarehouseID},
		})
	}
	if f.ActorID != "" {
		where = append(where, squirrel.Eq{"actor_id": f.ActorID})
	}
	if f.POLineID != nil {
		where = append(where, squirrel.Eq{"po_line_id": *f.POLineID})
	}
	return where
}

// ListPairs implements ledger.Repository.
func (r *TransactionRepo) ListPairs(ctx context.Context) ([]ledger.Pair, error) {
	var pairs []ledger.Pair
	err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &pairs, `
		SELECT product_id, source_warehouse_id AS warehouse_id FROM inv_transactions WHERE source_warehouse_id IS NOT NULL
		UNION
		SELECT product_id, target_warehouse_id FROM inv_transactions WHERE target_warehouse_id IS NOT NULL
		ORDER BY product_id, warehouse_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list pairs: %w", postgres.MapError(err))
	}
	return pairs, nil
}

func (r *TransactionRepo) selectEntries() squirrel.SelectBuilder {
	return r.builder.Select(entryColumns...).From(transactionsTable)
}

func (r *TransactionRepo) selectAll(ctx context.Context, q squirrel.SelectBuilder) ([]*ledger.Entry, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*ledger.Entry
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select entries: %w", postgres.MapError(err))
	}
	return items, nil
}
