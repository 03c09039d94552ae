package ledger_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/infrastructure/storage/postgres"
)

// ProcurementRepo resolves outstanding quantities of purchase-order lines
// stored in proc_request_lines.
type ProcurementRepo struct {
	txm *postgres.TxManager
}

// NewProcurementRepo creates a procurement repository.
func NewProcurementRepo(txm *postgres.TxManager) *ProcurementRepo {
	return &ProcurementRepo{txm: txm}
}

// AddLine registers a purchase-order line, replacing the ordered quantity of an existing one.
func (r *ProcurementRepo) AddLine(ctx context.Context, lineID id.ID, ordered int64) error {
	if ordered <= 0 {
		return apperror.NewValidation(fmt.Sprintf("ordered quantity must be positive, got %d", ordered))
	}
	_, err := r.txm.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO proc_request_lines (id, ordered_quantity, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET ordered_quantity = EXCLUDED.ordered_quantity
	`, lineID, ordered, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add po line: %w", postgres.MapError(err))
	}
	return nil
}

// OutstandingQuantity returns ordered minus approved check-ins linked to the line, never negative.
func (r *ProcurementRepo) OutstandingQuantity(ctx context.Context, lineID id.ID) (int64, error) {
	var outstanding int64
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, `
		SELECT GREATEST(l.ordered_quantity - COALESCE((
			SELECT SUM(t.quantity)
			FROM inv_transactions t
			WHERE t.po_line_id = l.id AND t.type = 'check_in' AND t.approval_status = 'approved'
		), 0), 0)::bigint
		FROM proc_request_lines l
		WHERE l.id = $1
	`, lineID).Scan(&outstanding)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperror.NewNotFound("purchase_order_line", lineID)
		}
		return 0, fmt.Errorf("outstanding quantity: %w", postgres.MapError(err))
	}
	return outstanding, nil
}
