// Package transaction admits inventory transactions to the ledger and drives
// checkouts through approval and delivery.
//
// Every operation is all-or-nothing: the ledger write, status changes and
// balance updates of one call commit together or not at all. Work on a stock
// aggregate or an entry is serialized through keylock, and storage
// compare-and-swap guards against writers outside this process.
package transaction

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/keylock"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

// Deps are the collaborators of the Engine and the StateMachine.
type Deps struct {
	Ledger    ledger.Repository
	Projector *balance.Projector
	TxManager tx.Manager
	Locker    keylock.Locker

	// Numerator assigns entry numbers. Optional.
	Numerator     numerator.Generator
	NumberOptions *numerator.Options

	// Procurement is required for check-ins against purchase-order lines.
	Procurement ProcurementLookup

	// Capability grants auto-approval. Nil means nobody has it.
	Capability CapabilityChecker

	Audit *audit.Recorder
	Clock func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Locker == nil {
		d.Locker = keylock.NewLocal()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Audit == nil {
		d.Audit = audit.NewRecorder(nil)
	}
	return d
}

// Engine validates and admits ledger entries.
type Engine struct {
	deps Deps
	sm   *StateMachine
}

// NewEngine creates an engine and the state machine it shares its collaborators with.
func NewEngine(deps Deps) *Engine {
	deps = deps.withDefaults()
	return &Engine{deps: deps, sm: NewStateMachine(deps)}
}

// StateMachine returns the approval and delivery state machine.
func (e *Engine) StateMachine() *StateMachine {
	return e.sm
}

// Submit validates req and writes exactly one ledger entry.
//
// Check-ins and transfers update balances on admission. Check-outs are admitted
// pending, except direct check-outs and those of actors with the auto-approval
// capability, which go through the approve path in the same transaction.
// On any error nothing is written.
func (e *Engine) Submit(ctx context.Context, req Request) (*ledger.Entry, error) {
	ctx, span := tracer.Start(ctx, "transaction.Submit",
		trace.WithAttributes(attribute.String("transaction.type", string(req.Type))))
	defer span.End()

	if req.ActorID == "" {
		req.ActorID = appctx.GetUserID(ctx)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	approveNow, err := e.approvesOnSubmit(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx, release, err := e.deps.Locker.Acquire(ctx, lockKeys(req, approveNow)...)
	if err != nil {
		return nil, fmt.Errorf("acquire locks: %w", err)
	}
	defer release()

	var (
		entry  *ledger.Entry
		events []audit.Event
	)
	err = tx.RunWithRetry(ctx, e.deps.TxManager, retryPolicy, func(ctx context.Context) error {
		var err error
		entry, events, err = e.admit(ctx, req, approveNow)
		return err
	})
	if err != nil {
		span.RecordError(err)
		if isCanceled(err) {
			logger.Warn(ctx, "submit interrupted, outcome unknown", "type", req.Type, "error", err)
		}
		if req.Type != ledger.TypeCheckIn && apperror.IsConcurrentModification(err) {
			return nil, stockContention(&ledger.Entry{ProductID: req.ProductID}, err)
		}
		return nil, err
	}

	e.deps.Audit.Record(ctx, events...)

	logger.Info(ctx, "inventory transaction admitted",
		"id", entry.ID,
		"number", entry.Number,
		"type", entry.Type,
		"quantity", entry.Quantity,
		"approval_status", entry.ApprovalStatus,
	)
	return entry, nil
}

// approvesOnSubmit reports whether a check-out is approved at admission.
func (e *Engine) approvesOnSubmit(ctx context.Context, req Request) (bool, error) {
	if req.Type != ledger.TypeCheckOut {
		return false, nil
	}
	if req.LinkedRequestID == nil {
		return true, nil
	}
	if e.deps.Capability == nil || req.ActorID == "" {
		return false, nil
	}
	ok, err := e.deps.Capability.HasAutoApprovalCapability(ctx, req.ActorID)
	if err != nil {
		return false, fmt.Errorf("check auto-approval capability: %w", err)
	}
	return ok, nil
}

func lockKeys(req Request, approveNow bool) []string {
	var keys []string
	switch req.Type {
	case ledger.TypeCheckIn:
		keys = append(keys, keylock.StockKey(req.ProductID, *req.TargetWarehouseID))
		if req.POLineID != nil {
			keys = append(keys, keylock.POLineKey(*req.POLineID))
		}
	case ledger.TypeCheckOut:
		if approveNow {
			keys = append(keys, keylock.StockKey(req.ProductID, *req.SourceWarehouseID))
		}
	case ledger.TypeTransfer:
		keys = append(keys,
			keylock.StockKey(req.ProductID, *req.SourceWarehouseID),
			keylock.StockKey(req.ProductID, *req.TargetWarehouseID),
		)
	}
	return keys
}

// admit runs inside the submission transaction.
func (e *Engine) admit(ctx context.Context, req Request, approveNow bool) (*ledger.Entry, []audit.Event, error) {
	now := e.deps.Clock().UTC()
	entry := req.entry(now)

	if req.POLineID != nil {
		if err := e.checkOutstanding(ctx, req); err != nil {
			return nil, nil, err
		}
	}

	if e.deps.Numerator != nil {
		cfg := numerator.DefaultConfig(entry.Type.NumberPrefix())
		number, err := e.deps.Numerator.GetNextNumber(ctx, cfg, e.deps.NumberOptions, now)
		if err != nil {
			return nil, nil, fmt.Errorf("generate number: %w", err)
		}
		entry.Number = number
	}

	if _, err := e.deps.Ledger.Append(ctx, entry); err != nil {
		return nil, nil, fmt.Errorf("append entry: %w", err)
	}
	events := []audit.Event{newEvent(entry, audit.ActionSubmitted, entry.ActorID, now, map[string]any{
		"quantity":        entry.Quantity,
		"approval_status": string(entry.ApprovalStatus),
	})}

	switch {
	case entry.Type != ledger.TypeCheckOut:
		if err := e.deps.Projector.Apply(ctx, entry); err != nil {
			return nil, nil, err
		}
	case approveNow:
		change := ledger.ApprovalChange{DecidedBy: entry.ActorID, DecidedAt: now, Notes: autoApprovalNote(req)}
		if err := e.sm.approveTx(ctx, entry, change); err != nil {
			return nil, nil, err
		}
		events = append(events, approvedEvent(entry, change))
	}

	stored, err := e.deps.Ledger.Get(ctx, entry.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("reload entry: %w", err)
	}
	return stored, events, nil
}

func (e *Engine) checkOutstanding(ctx context.Context, req Request) error {
	if e.deps.Procurement == nil {
		return apperror.NewValidation("purchase-order check-ins are not available").WithDetail("field", "po_line_id")
	}
	outstanding, err := e.deps.Procurement.OutstandingQuantity(ctx, *req.POLineID)
	if err != nil {
		return fmt.Errorf("outstanding quantity: %w", err)
	}
	if req.Quantity > outstanding {
		return apperror.NewExceedsPending(req.POLineID.String(), req.Quantity, outstanding)
	}
	return nil
}

func autoApprovalNote(req Request) string {
	if req.LinkedRequestID == nil {
		return "direct checkout"
	}
	return "auto-approved on submission"
}

// Get returns one entry. Callers whose submit or transition timed out use it
// to learn the outcome before retrying.
func (e *Engine) Get(ctx context.Context, entryID id.ID) (*ledger.Entry, error) {
	return e.deps.Ledger.Get(ctx, entryID)
}

// List returns entries matching f, newest first, with the total match count.
func (e *Engine) List(ctx context.Context, f ledger.Filter) ([]*ledger.Entry, int, error) {
	items, total, err := e.deps.Ledger.List(ctx, f.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("list entries: %w", err)
	}
	return items, total, nil
}

func newEvent(entry *ledger.Entry, action audit.Action, actor string, at time.Time, changes map[string]any) audit.Event {
	return audit.Event{
		EntryID:     entry.ID,
		EntryNumber: entry.Number,
		EntryType:   string(entry.Type),
		Action:      action,
		ActorID:     actor,
		OccurredAt:  at,
		Changes:     changes,
	}
}

func approvedEvent(entry *ledger.Entry, change ledger.ApprovalChange) audit.Event {
	return newEvent(entry, audit.ActionApproved, change.DecidedBy, change.DecidedAt, audit.Diff(
		map[string]any{"approval_status": string(ledger.ApprovalPending), "delivery_status": string(ledger.DeliveryNone)},
		map[string]any{"approval_status": string(ledger.ApprovalApproved), "delivery_status": string(ledger.DeliveryPending)},
	))
}
