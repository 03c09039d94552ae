package ledger_repo

import (
	"strings"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

func TestFilterWhere(t *testing.T) {
	w := id.New()
	sql, args, err := filterWhere(ledger.Filter{
		Type:           ledger.TypeCheckOut,
		ApprovalStatus: ledger.ApprovalPending,
		WarehouseID:    &w,
	}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "(type = ? AND approval_status = ? AND (source_warehouse_id = ? OR target_warehouse_id = ?))", sql)
	assert.Equal(t, []any{ledger.TypeCheckOut, ledger.ApprovalPending, w.String(), w.String()}, args)
}

func TestFilterWhere_Empty(t *testing.T) {
	sql, args, err := filterWhere(ledger.Filter{}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(1=1)", sql)
	assert.Empty(t, args)
}

func TestTransactionRepo_InsertQuery(t *testing.T) {
	r := NewTransactionRepo(nil)
	target := id.New()
	e := &ledger.Entry{
		ID:                id.New(),
		Type:              ledger.TypeCheckIn,
		ProductID:         id.New(),
		TargetWarehouseID: &target,
		Quantity:          5,
		CreatedAt:         time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		ApprovalStatus:    ledger.ApprovalApproved,
		DeliveryStatus:    ledger.DeliveryNone,
	}

	sql, args, err := r.insertQuery(e).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO inv_transactions (id,number,type,product_id,")
	assert.Len(t, args, len(entryColumns))
	assert.Equal(t, int64(5), args[6])
}

func TestTransactionRepo_StatusGuards(t *testing.T) {
	r := NewTransactionRepo(nil)

	// Rejected before any query runs: the repository has no pool.
	err := r.SetApprovalStatus(t.Context(), id.New(), ledger.ApprovalApproved, ledger.ApprovalRejected, ledger.ApprovalChange{})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	err = r.SetDeliveryStatus(t.Context(), id.New(), ledger.DeliveryDelivered, ledger.DeliveryPending, nil)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestMergeDeliveryDetails_KeepsStoredBatch(t *testing.T) {
	r := NewTransactionRepo(nil)
	details := &ledger.DeliveryDetails{RecipientName: "Ward 3", BatchNumber: "B999"}

	sql, args, err := r.builder.Update(transactionsTable).
		Set("delivery_details", squirrel.Expr(mergeDeliveryDetails, details)).
		ToSql()
	require.NoError(t, err)

	// The stored batch keys are concatenated last so they win over the payload.
	payload := strings.Index(sql, "$1::jsonb")
	stored := strings.Index(sql, "'batch_number', delivery_details->'batch_number'")
	require.Positive(t, payload)
	require.Positive(t, stored)
	assert.Less(t, payload, stored)
	assert.Contains(t, sql, "'expiry_date', delivery_details->'expiry_date'")
	assert.Equal(t, []any{details}, args)
}
