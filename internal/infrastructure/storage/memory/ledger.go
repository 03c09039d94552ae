package memory

import (
	"context"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

const entryEntity = "inventory_transaction"

// LedgerRepo implements ledger.Repository over a Store.
type LedgerRepo struct {
	s *Store
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// NewLedgerRepo creates a ledger repository.
func NewLedgerRepo(s *Store) *LedgerRepo {
	return &LedgerRepo{s: s}
}

// Append implements ledger.Repository.
func (r *LedgerRepo) Append(ctx context.Context, e *ledger.Entry) (id.ID, error) {
	stored := e.Clone()
	if id.IsNil(stored.ID) {
		stored.ID = id.New()
	}

	err := r.s.update(ctx, func(t *txState) error {
		if _, exists := r.s.entries[stored.ID]; exists {
			return apperror.NewDuplicate(entryEntity, "id", stored.ID.String())
		}
		r.s.entries[stored.ID] = stored
		r.s.order = append(r.s.order, stored.ID)
		t.onRollback(func() {
			delete(r.s.entries, stored.ID)
			r.s.order = r.s.order[:len(r.s.order)-1]
		})
		return nil
	})
	if err != nil {
		return id.Nil(), err
	}
	return stored.ID, nil
}

// Get implements ledger.Repository.
func (r *LedgerRepo) Get(ctx context.Context, entryID id.ID) (*ledger.Entry, error) {
	var out *ledger.Entry
	r.s.view(ctx, func() {
		out = r.s.entries[entryID].Clone()
	})
	if out == nil {
		return nil, apperror.NewNotFound(entryEntity, entryID)
	}
	return out, nil
}

// ListByProductWarehouse implements ledger.Repository.
func (r *LedgerRepo) ListByProductWarehouse(ctx context.Context, productID, warehouseID id.ID) ([]*ledger.Entry, error) {
	pair := ledger.Pair{ProductID: productID, WarehouseID: warehouseID}
	var out []*ledger.Entry
	r.s.view(ctx, func() {
		for _, entryID := range r.s.order {
			if e := r.s.entries[entryID]; e.Touches(pair) {
				out = append(out, e.Clone())
			}
		}
	})
	return out, nil
}

// SetApprovalStatus implements ledger.Repository.
func (r *LedgerRepo) SetApprovalStatus(ctx context.Context, entryID id.ID, expected, next ledger.ApprovalStatus, change ledger.ApprovalChange) error {
	return r.s.update(ctx, func(t *txState) error {
		e, ok := r.s.entries[entryID]
		if !ok {
			return apperror.NewNotFound(entryEntity, entryID)
		}
		if e.ApprovalStatus != expected || !ledger.ValidApprovalTransition(expected, next) {
			return apperror.NewInvalidTransition(entryEntity, entryID, string(e.ApprovalStatus), string(next))
		}

		prev := e.Clone()
		e.ApprovalStatus = next
		e.ApprovalNotes = change.Notes
		e.DecidedBy = change.DecidedBy
		decidedAt := change.DecidedAt
		e.DecidedAt = &decidedAt
		t.onRollback(func() { *e = *prev })
		return nil
	})
}

// SetDeliveryStatus implements ledger.Repository.
func (r *LedgerRepo) SetDeliveryStatus(ctx context.Context, entryID id.ID, expected, next ledger.DeliveryStatus, details *ledger.DeliveryDetails) error {
	return r.s.update(ctx, func(t *txState) error {
		e, ok := r.s.entries[entryID]
		if !ok {
			return apperror.NewNotFound(entryEntity, entryID)
		}
		if e.DeliveryStatus != expected || !ledger.ValidDeliveryTransition(expected, next) {
			return apperror.NewInvalidTransition(entryEntity, entryID, string(e.DeliveryStatus), string(next))
		}

		prev := e.Clone()
		e.DeliveryStatus = next
		if details != nil {
			e.DeliveryDetails = e.DeliveryDetails.Merge(details)
		}
		t.onRollback(func() { *e = *prev })
		return nil
	})
}

// List implements ledger.Repository.
func (r *LedgerRepo) List(ctx context.Context, f ledger.Filter) ([]*ledger.Entry, int, error) {
	f = f.Normalize()
	var (
		out   []*ledger.Entry
		total int
	)
	r.s.view(ctx, func() {
		for i := len(r.s.order) - 1; i >= 0; i-- {
			e := r.s.entries[r.s.order[i]]
			if !f.Matches(e) {
				continue
			}
			if total >= f.Offset && len(out) < f.Limit {
				out = append(out, e.Clone())
			}
			total++
		}
	})
	return out, total, nil
}

// ListPairs implements ledger.Repository.
func (r *LedgerRepo) ListPairs(ctx context.Context) ([]ledger.Pair, error) {
	seen := make(map[ledger.Pair]struct{})
	var out []ledger.Pair
	r.s.view(ctx, func() {
		for _, entryID := range r.s.order {
			for _, p := range r.s.entries[entryID].Pairs() {
				if _, ok := seen[p]; !ok {
					seen[p] = struct{}{}
					out = append(out, p)
				}
			}
		}
	})
	return out, nil
}
