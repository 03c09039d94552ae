package memory

import (
	"context"
	"fmt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

// Procurement tracks purchase-order lines. Outstanding quantity is the ordered
// quantity minus approved check-ins linked to the line.
type Procurement struct {
	s *Store
}

// NewProcurement creates a procurement lookup.
func NewProcurement(s *Store) *Procurement {
	return &Procurement{s: s}
}

// AddLine registers a purchase-order line with its ordered quantity.
func (p *Procurement) AddLine(ctx context.Context, lineID id.ID, ordered int64) error {
	if ordered <= 0 {
		return apperror.NewValidation(fmt.Sprintf("ordered quantity must be positive, got %d", ordered))
	}
	return p.s.update(ctx, func(t *txState) error {
		prev, existed := p.s.poLines[lineID]
		p.s.poLines[lineID] = ordered
		t.onRollback(func() {
			if existed {
				p.s.poLines[lineID] = prev
			} else {
				delete(p.s.poLines, lineID)
			}
		})
		return nil
	})
}

// OutstandingQuantity returns ordered minus already received for the line.
func (p *Procurement) OutstandingQuantity(ctx context.Context, lineID id.ID) (int64, error) {
	var (
		ordered  int64
		received int64
		found    bool
	)
	p.s.view(ctx, func() {
		ordered, found = p.s.poLines[lineID]
		if !found {
			return
		}
		for _, entryID := range p.s.order {
			e := p.s.entries[entryID]
			if e.Type == ledger.TypeCheckIn && e.IsApplied() && e.POLineID != nil && *e.POLineID == lineID {
				received += e.Quantity
			}
		}
	})
	if !found {
		return 0, apperror.NewNotFound("purchase_order_line", lineID)
	}
	return max(ordered-received, 0), nil
}
