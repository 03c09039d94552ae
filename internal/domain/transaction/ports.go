package transaction

import (
	"context"

	"stockledger/internal/core/id"
)

// ProcurementLookup reports how much of a purchase-order line is still to be received.
type ProcurementLookup interface {
	OutstandingQuantity(ctx context.Context, poLineID id.ID) (int64, error)
}

// CapabilityChecker decides whether an actor's request-based checkouts are
// approved on submission.
type CapabilityChecker interface {
	HasAutoApprovalCapability(ctx context.Context, actorID string) (bool, error)
}

// CapabilityFunc adapts a function to CapabilityChecker.
type CapabilityFunc func(ctx context.Context, actorID string) (bool, error)

// HasAutoApprovalCapability implements CapabilityChecker.
func (f CapabilityFunc) HasAutoApprovalCapability(ctx context.Context, actorID string) (bool, error) {
	return f(ctx, actorID)
}
