package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

func TestDeltas(t *testing.T) {
	p, w1, w2 := id.New(), id.New(), id.New()

	tests := []struct {
		name  string
		entry *ledger.Entry
		want  []Delta
	}{
		{
			name:  "check_in increments target",
			entry: &ledger.Entry{Type: ledger.TypeCheckIn, ProductID: p, TargetWarehouseID: &w1, Quantity: 5},
			want:  []Delta{{Pair: ledger.Pair{ProductID: p, WarehouseID: w1}, Amount: 5}},
		},
		{
			name:  "check_out decrements source",
			entry: &ledger.Entry{Type: ledger.TypeCheckOut, ProductID: p, SourceWarehouseID: &w1, Quantity: 3},
			want:  []Delta{{Pair: ledger.Pair{ProductID: p, WarehouseID: w1}, Amount: -3}},
		},
		{
			name:  "transfer decrements source first",
			entry: &ledger.Entry{Type: ledger.TypeTransfer, ProductID: p, SourceWarehouseID: &w1, TargetWarehouseID: &w2, Quantity: 2},
			want: []Delta{
				{Pair: ledger.Pair{ProductID: p, WarehouseID: w1}, Amount: -2},
				{Pair: ledger.Pair{ProductID: p, WarehouseID: w2}, Amount: 2},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Deltas(tt.entry))
		})
	}
}

func TestFold_SkipsUnappliedEntries(t *testing.T) {
	p, w1, w2 := id.New(), id.New(), id.New()
	pair := ledger.Pair{ProductID: p, WarehouseID: w1}

	entries := []*ledger.Entry{
		{Type: ledger.TypeCheckIn, ProductID: p, TargetWarehouseID: &w1, Quantity: 10, ApprovalStatus: ledger.ApprovalApproved},
		{Type: ledger.TypeCheckOut, ProductID: p, SourceWarehouseID: &w1, Quantity: 4, ApprovalStatus: ledger.ApprovalApproved},
		{Type: ledger.TypeCheckOut, ProductID: p, SourceWarehouseID: &w1, Quantity: 10, ApprovalStatus: ledger.ApprovalPending},
		{Type: ledger.TypeCheckOut, ProductID: p, SourceWarehouseID: &w1, Quantity: 1, ApprovalStatus: ledger.ApprovalRejected},
		{Type: ledger.TypeTransfer, ProductID: p, SourceWarehouseID: &w1, TargetWarehouseID: &w2, Quantity: 6, ApprovalStatus: ledger.ApprovalApproved},
	}

	assert.Equal(t, int64(0), Fold(entries, pair))
	assert.Equal(t, int64(6), Fold(entries, ledger.Pair{ProductID: p, WarehouseID: w2}))
}
