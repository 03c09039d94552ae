package ledger

import (
	"context"

	"stockledger/internal/core/id"
)

// Repository is the ledger store.
//
// Status setters are compare-and-swap operations: they fail with
// apperror.ErrInvalidTransition when the stored status differs from expected
// or when expected is already terminal, and with apperror.ErrNotFound for an
// unknown id.
type Repository interface {
	// Append stores a new entry and returns its id.
	Append(ctx context.Context, e *Entry) (id.ID, error)

	// Get returns the entry or apperror.ErrNotFound.
	Get(ctx context.Context, entryID id.ID) (*Entry, error)

	// ListByProductWarehouse returns entries referencing the pair as source
	// or target, oldest first.
	ListByProductWarehouse(ctx context.Context, productID, warehouseID id.ID) ([]*Entry, error)

	SetApprovalStatus(ctx context.Context, entryID id.ID, expected, next ApprovalStatus, change ApprovalChange) error

	// SetDeliveryStatus merges details into the stored payload.
	SetDeliveryStatus(ctx context.Context, entryID id.ID, expected, next DeliveryStatus, details *DeliveryDetails) error

	// List returns a page of entries matching f, newest first, and the total count.
	List(ctx context.Context, f Filter) ([]*Entry, int, error)

	// ListPairs returns every aggregate referenced by any entry.
	ListPairs(ctx context.Context) ([]Pair, error)
}

// Filter selects entries for approval queues and history views.
type Filter struct {
	Type           Type
	ApprovalStatus ApprovalStatus
	DeliveryStatus DeliveryStatus
	ProductID      *id.ID
	WarehouseID    *id.ID
	ActorID        string
	POLineID       *id.ID

	Limit  int
	Offset int
}

// DefaultListLimit applies when Filter.Limit is not positive.
const DefaultListLimit = 50

// MaxListLimit caps Filter.Limit.
const MaxListLimit = 500

// Normalize clamps paging parameters.
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether e satisfies every set criterion of f.
func (f Filter) Matches(e *Entry) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.ApprovalStatus != "" && e.ApprovalStatus != f.ApprovalStatus {
		return false
	}
	if f.DeliveryStatus != "" && e.DeliveryStatus != f.DeliveryStatus {
		return false
	}
	if f.ProductID != nil && e.ProductID != *f.ProductID {
		return false
	}
	if f.WarehouseID != nil {
		w := *f.WarehouseID
		if !(e.SourceWarehouseID != nil && *e.SourceWarehouseID == w) &&
			!(e.TargetWarehouseID != nil && *e.TargetWarehouseID == w) {
			return false
		}
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.POLineID != nil && (e.POLineID == nil || *e.POLineID != *f.POLineID) {
		return false
	}
	return true
}
