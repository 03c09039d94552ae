package transaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/keylock"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

const entryEntity = "inventory_transaction"

// StateMachine governs the checkout lifecycle:
//
//	pending -> approved -> delivery pending -> delivered
//	pending -> rejected
//
// Stock is decremented only on approval, and delivery is recorded at most once.
type StateMachine struct {
	deps Deps
}

// NewStateMachine creates a state machine.
func NewStateMachine(deps Deps) *StateMachine {
	return &StateMachine{deps: deps.withDefaults()}
}

// Approve moves a pending check-out to approved and decrements its source
// stock in one transaction. Insufficient stock leaves the entry pending.
func (sm *StateMachine) Approve(ctx context.Context, entryID id.ID) (*ledger.Entry, error) {
	ctx, span := tracer.Start(ctx, "transaction.Approve",
		trace.WithAttributes(attribute.String("entry.id", entryID.String())))
	defer span.End()

	ctx, release, err := sm.deps.Locker.Acquire(ctx, keylock.EntryKey(entryID))
	if err != nil {
		return nil, fmt.Errorf("acquire entry lock: %w", err)
	}
	defer release()

	entry, err := sm.loadCheckOut(ctx, entryID, ledger.ApprovalApproved)
	if err != nil {
		return nil, err
	}
	if entry.ApprovalStatus != ledger.ApprovalPending {
		return nil, apperror.NewInvalidTransition(entryEntity, entryID, string(entry.ApprovalStatus), string(ledger.ApprovalApproved))
	}

	ctx, releaseStock, err := sm.deps.Locker.Acquire(ctx, keylock.StockKey(entry.ProductID, *entry.SourceWarehouseID))
	if err != nil {
		return nil, fmt.Errorf("acquire stock lock: %w", err)
	}
	defer releaseStock()

	change := ledger.ApprovalChange{
		DecidedBy: appctx.GetUserID(ctx),
		DecidedAt: sm.deps.Clock().UTC(),
	}
	err = tx.RunWithRetry(ctx, sm.deps.TxManager, retryPolicy, func(ctx context.Context) error {
		return sm.approveTx(ctx, entry, change)
	})
	if err != nil {
		span.RecordError(err)
		return nil, sm.settle(ctx, entry, err, ledger.ApprovalApproved)
	}

	sm.deps.Audit.Record(ctx, approvedEvent(entry, change))
	logger.Info(ctx, "checkout approved", "id", entry.ID, "number", entry.Number, "quantity", entry.Quantity)

	return sm.deps.Ledger.Get(ctx, entryID)
}

// approveTx is the approve path shared with auto-approval on submission.
// Callers hold the entry's stock lock.
func (sm *StateMachine) approveTx(ctx context.Context, entry *ledger.Entry, change ledger.ApprovalChange) error {
	return sm.deps.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := sm.deps.Ledger.SetApprovalStatus(ctx, entry.ID, ledger.ApprovalPending, ledger.ApprovalApproved, change); err != nil {
			return err
		}

		applied := entry.Clone()
		applied.ApprovalStatus = ledger.ApprovalApproved
		if err := sm.deps.Projector.Apply(ctx, applied); err != nil {
			return err
		}

		return sm.deps.Ledger.SetDeliveryStatus(ctx, entry.ID, ledger.DeliveryNone, ledger.DeliveryPending, nil)
	})
}

// Reject moves a pending check-out to rejected. Stock is never touched.
func (sm *StateMachine) Reject(ctx context.Context, entryID id.ID, notes string) (*ledger.Entry, error) {
	ctx, span := tracer.Start(ctx, "transaction.Reject",
		trace.WithAttributes(attribute.String("entry.id", entryID.String())))
	defer span.End()

	ctx, release, err := sm.deps.Locker.Acquire(ctx, keylock.EntryKey(entryID))
	if err != nil {
		return nil, fmt.Errorf("acquire entry lock: %w", err)
	}
	defer release()

	entry, err := sm.loadCheckOut(ctx, entryID, ledger.ApprovalRejected)
	if err != nil {
		return nil, err
	}
	if entry.ApprovalStatus != ledger.ApprovalPending {
		return nil, apperror.NewInvalidTransition(entryEntity, entryID, string(entry.ApprovalStatus), string(ledger.ApprovalRejected))
	}

	change := ledger.ApprovalChange{
		Notes:     notes,
		DecidedBy: appctx.GetUserID(ctx),
		DecidedAt: sm.deps.Clock().UTC(),
	}
	err = tx.RunWithRetry(ctx, sm.deps.TxManager, retryPolicy, func(ctx context.Context) error {
		return sm.deps.Ledger.SetApprovalStatus(ctx, entryID, ledger.ApprovalPending, ledger.ApprovalRejected, change)
	})
	if err != nil {
		span.RecordError(err)
		return nil, sm.settle(ctx, entry, err, ledger.ApprovalRejected)
	}

	sm.deps.Audit.Record(ctx, newEvent(entry, audit.ActionRejected, change.DecidedBy, change.DecidedAt, map[string]any{
		"approval_status": map[string]any{"old": string(ledger.ApprovalPending), "new": string(ledger.ApprovalRejected)},
		"notes":           notes,
	}))
	logger.Info(ctx, "checkout rejected", "id", entry.ID, "number", entry.Number)

	return sm.deps.Ledger.Get(ctx, entryID)
}

// RecordDelivery marks an approved check-out delivered. A second call fails
// with ErrAlreadyDelivered and leaves the first details in place.
func (sm *StateMachine) RecordDelivery(ctx context.Context, entryID id.ID, details ledger.DeliveryDetails) (*ledger.Entry, error) {
	ctx, span := tracer.Start(ctx, "transaction.RecordDelivery",
		trace.WithAttributes(attribute.String("entry.id", entryID.String())))
	defer span.End()

	ctx, release, err := sm.deps.Locker.Acquire(ctx, keylock.EntryKey(entryID))
	if err != nil {
		return nil, fmt.Errorf("acquire entry lock: %w", err)
	}
	defer release()

	entry, err := sm.loadCheckOut(ctx, entryID, ledger.ApprovalApproved)
	if err != nil {
		return nil, err
	}
	if entry.DeliveryStatus == ledger.DeliveryDelivered {
		return nil, apperror.NewAlreadyDelivered(entryID)
	}
	if entry.ApprovalStatus != ledger.ApprovalApproved {
		return nil, apperror.NewInvalidTransition(entryEntity, entryID, string(entry.ApprovalStatus), string(ledger.DeliveryDelivered)).
			WithDetail("reason", "checkout is not approved")
	}

	details.BatchNumber = strings.TrimSpace(details.BatchNumber)
	if details.BatchNumber == ledger.UnbatchedBucket {
		return nil, reservedBatch()
	}
	// Batch metadata decides which bucket the stock left; it can be filled
	// in at delivery but not rewritten.
	if field := entry.DeliveryDetails.BatchConflict(&details); field != "" {
		current, requested := entry.DeliveryDetails.BatchNumber, details.BatchNumber
		if field == "expiry_date" {
			current, requested = entry.DeliveryDetails.ExpiryDate.Format(time.DateOnly), details.ExpiryDate.Format(time.DateOnly)
		}
		return nil, apperror.NewInvalidTransition(entryEntity, entryID, current, requested).WithDetail("field", field)
	}
	if details.DeliveredAt == nil {
		at := sm.deps.Clock().UTC()
		details.DeliveredAt = &at
	}
	merged := entry.DeliveryDetails.Merge(&details)

	err = tx.RunWithRetry(ctx, sm.deps.TxManager, retryPolicy, func(ctx context.Context) error {
		return sm.deps.Ledger.SetDeliveryStatus(ctx, entryID, entry.DeliveryStatus, ledger.DeliveryDelivered, merged)
	})
	if err != nil {
		span.RecordError(err)
		if current, getErr := sm.deps.Ledger.Get(ctx, entryID); getErr == nil && current.DeliveryStatus == ledger.DeliveryDelivered {
			return nil, apperror.NewAlreadyDelivered(entryID)
		}
		if apperror.IsConcurrentModification(err) {
			return nil, apperror.NewInvalidTransition(entryEntity, entryID, string(entry.DeliveryStatus), string(ledger.DeliveryDelivered)).WithCause(err)
		}
		return nil, err
	}

	sm.deps.Audit.Record(ctx, newEvent(entry, audit.ActionDelivered, appctx.GetUserID(ctx), *details.DeliveredAt, map[string]any{
		"delivery_status":      map[string]any{"old": string(entry.DeliveryStatus), "new": string(ledger.DeliveryDelivered)},
		"recipient_name":       details.RecipientName,
		"recipient_department": details.RecipientDepartment,
		"batch_number":         merged.BatchNumber,
	}))
	logger.Info(ctx, "delivery recorded", "id", entry.ID, "number", entry.Number, "recipient", details.RecipientName)

	return sm.deps.Ledger.Get(ctx, entryID)
}

// loadCheckOut returns the entry, rejecting entries that have no approval lifecycle.
func (sm *StateMachine) loadCheckOut(ctx context.Context, entryID id.ID, requested ledger.ApprovalStatus) (*ledger.Entry, error) {
	entry, err := sm.deps.Ledger.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Type != ledger.TypeCheckOut {
		return nil, apperror.NewInvalidTransition(entryEntity, entryID, string(entry.ApprovalStatus), string(requested)).
			WithDetail("type", entry.Type)
	}
	return entry, nil
}

// settle maps a failed approval transition to what the caller should see.
// Retries that never settled surface as a lost race on the status when the
// entry moved on, and as insufficient stock otherwise.
func (sm *StateMachine) settle(ctx context.Context, entry *ledger.Entry, err error, requested ledger.ApprovalStatus) error {
	if !apperror.IsConcurrentModification(err) {
		return err
	}
	current, getErr := sm.deps.Ledger.Get(ctx, entry.ID)
	if getErr == nil && current.ApprovalStatus != ledger.ApprovalPending {
		return apperror.NewInvalidTransition(entryEntity, entry.ID, string(current.ApprovalStatus), string(requested)).WithCause(err)
	}
	if requested == ledger.ApprovalApproved {
		return stockContention(entry, err)
	}
	return apperror.NewInvalidTransition(entryEntity, entry.ID, string(ledger.ApprovalPending), string(requested)).WithCause(err)
}
