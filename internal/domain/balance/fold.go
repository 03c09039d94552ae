package balance

import (
	"stockledger/internal/domain/ledger"
)

// Delta is the signed effect of an entry on one aggregate.
type Delta struct {
	Pair   ledger.Pair
	Amount int64
}

// Deltas returns the effects of e when applied, decrements first.
func Deltas(e *ledger.Entry) []Delta {
	out := make([]Delta, 0, 2)
	switch e.Type {
	case ledger.TypeCheckIn:
		if e.TargetWarehouseID != nil {
			out = append(out, Delta{Pair: ledger.Pair{ProductID: e.ProductID, WarehouseID: *e.TargetWarehouseID}, Amount: e.Quantity})
		}
	case ledger.TypeCheckOut:
		if e.SourceWarehouseID != nil {
			out = append(out, Delta{Pair: ledger.Pair{ProductID: e.ProductID, WarehouseID: *e.SourceWarehouseID}, Amount: -e.Quantity})
		}
	case ledger.TypeTransfer:
		if e.SourceWarehouseID != nil {
			out = append(out, Delta{Pair: ledger.Pair{ProductID: e.ProductID, WarehouseID: *e.SourceWarehouseID}, Amount: -e.Quantity})
		}
		if e.TargetWarehouseID != nil {
			out = append(out, Delta{Pair: ledger.Pair{ProductID: e.ProductID, WarehouseID: *e.TargetWarehouseID}, Amount: e.Quantity})
		}
	}
	return out
}

// Fold sums the effect of the applied entries on pair.
func Fold(entries []*ledger.Entry, pair ledger.Pair) int64 {
	var total int64
	for _, e := range entries {
		if !e.IsApplied() {
			continue
		}
		for _, d := range Deltas(e) {
			if d.Pair == pair {
				total += d.Amount
			}
		}
	}
	return total
}
