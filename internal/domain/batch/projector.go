// Package batch derives per-batch stock and expiry by replaying the ledger.
// No batch state is stored; every projection is a fold over approved entries.
package batch

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
)

// Unbatched is the bucket for entries without batch metadata.
const Unbatched = ledger.UnbatchedBucket

// Balance is the derived stock of one batch in one warehouse.
type Balance struct {
	ProductID   id.ID        `json:"product_id"`
	WarehouseID id.ID        `json:"warehouse_id"`
	BatchNumber string       `json:"batch_number"`
	Quantity    int64        `json:"quantity"`
	ExpiryDate  *time.Time   `json:"expiry_date,omitempty"`
	UnitPrice   types.Money  `json:"unit_price"`
	Currency    string       `json:"currency,omitempty"`
	Status      ExpiryStatus `json:"status,omitempty"`
}

// Project folds entries into batch balances for pair. Check-ins into the
// warehouse add, check-outs from it subtract, transfers move unbatched stock.
// Expiry and unit price come from the latest contributing check-in.
// Batches with a non-positive result are omitted.
func Project(entries []*ledger.Entry, pair ledger.Pair, now time.Time) []Balance {
	buckets := make(map[string]*Balance)
	bucket := func(name string) *Balance {
		b, ok := buckets[name]
		if !ok {
			b = &Balance{ProductID: pair.ProductID, WarehouseID: pair.WarehouseID, BatchNumber: name}
			buckets[name] = b
		}
		return b
	}

	for _, e := range entries {
		if !e.IsApplied() || e.ProductID != pair.ProductID {
			continue
		}
		inbound := e.TargetWarehouseID != nil && *e.TargetWarehouseID == pair.WarehouseID
		outbound := e.SourceWarehouseID != nil && *e.SourceWarehouseID == pair.WarehouseID

		switch e.Type {
		case ledger.TypeCheckIn:
			if !inbound {
				continue
			}
			b := bucket(batchOf(e))
			b.Quantity += e.Quantity
			if e.DeliveryDetails != nil && e.DeliveryDetails.ExpiryDate != nil {
				expiry := *e.DeliveryDetails.ExpiryDate
				b.ExpiryDate = &expiry
			}
			b.UnitPrice = e.UnitPrice
			b.Currency = e.Currency
		case ledger.TypeCheckOut:
			if outbound {
				bucket(batchOf(e)).Quantity -= e.Quantity
			}
		case ledger.TypeTransfer:
			if outbound {
				bucket(Unbatched).Quantity -= e.Quantity
			}
			if inbound {
				bucket(Unbatched).Quantity += e.Quantity
			}
		}
	}

	out := make([]Balance, 0, len(buckets))
	for _, b := range buckets {
		if b.Quantity <= 0 {
			continue
		}
		b.Status = Classify(b.ExpiryDate, now)
		out = append(out, *b)
	}
	slices.SortFunc(out, compareBalances)
	return out
}

func batchOf(e *ledger.Entry) string {
	if n := e.BatchNumber(); n != "" {
		return n
	}
	return Unbatched
}

// compareBalances orders by expiry, nil last, then batch number.
func compareBalances(a, b Balance) int {
	switch {
	case a.ExpiryDate == nil && b.ExpiryDate != nil:
		return 1
	case a.ExpiryDate != nil && b.ExpiryDate == nil:
		return -1
	case a.ExpiryDate != nil && b.ExpiryDate != nil:
		if c := a.ExpiryDate.Compare(*b.ExpiryDate); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.BatchNumber, b.BatchNumber)
}

// Projector reads the ledger and projects batches on demand.
type Projector struct {
	ledger ledger.Repository
	txm    tx.ReadOnlyManager
	now    func() time.Time
}

// NewProjector creates a batch projector. A nil clock uses time.Now.
func NewProjector(ledgerRepo ledger.Repository, txm tx.ReadOnlyManager, now func() time.Time) *Projector {
	if now == nil {
		now = time.Now
	}
	return &Projector{ledger: ledgerRepo, txm: txm, now: now}
}

// ProjectBatches returns the batches of a pair from one consistent read.
func (p *Projector) ProjectBatches(ctx context.Context, productID, warehouseID id.ID) ([]Balance, error) {
	var entries []*ledger.Entry
	err := p.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		entries, err = p.ledger.ListByProductWarehouse(ctx, productID, warehouseID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	pair := ledger.Pair{ProductID: productID, WarehouseID: warehouseID}
	return Project(entries, pair, p.now()), nil
}

// ExpiringWithin returns the batches of a pair expiring before now+window,
// including expired ones.
func (p *Projector) ExpiringWithin(ctx context.Context, productID, warehouseID id.ID, window time.Duration) ([]Balance, error) {
	all, err := p.ProjectBatches(ctx, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	limit := p.now().Add(window)
	out := all[:0]
	for _, b := range all {
		if b.ExpiryDate != nil && b.ExpiryDate.Before(limit) {
			out = append(out, b)
		}
	}
	return out, nil
}
