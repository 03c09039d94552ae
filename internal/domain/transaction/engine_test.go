package transaction_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/security"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/batch"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/transaction"
	"stockledger/internal/infrastructure/storage/memory"
)

var fixedNow = time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)

type harness struct {
	store       *memory.Store
	ledger      *memory.LedgerRepo
	procurement *memory.Procurement
	projector   *balance.Projector
	batches     *batch.Projector
	sink        *audit.MemorySink
	engine      *transaction.Engine
	sm          *transaction.StateMachine
}

func newHarness(t *testing.T, opts ...func(*transaction.Deps)) *harness {
	t.Helper()
	s := memory.NewStore()
	h := &harness{
		store:       s,
		ledger:      memory.NewLedgerRepo(s),
		procurement: memory.NewProcurement(s),
		sink:        &audit.MemorySink{},
	}
	h.projector = balance.NewProjector(memory.NewBalanceRepo(s), h.ledger, s)
	h.batches = batch.NewProjector(h.ledger, s, func() time.Time { return fixedNow })

	roles, err := security.NewRuleChecker("", security.StaticRoles{"manager": {"inventory_manager"}})
	require.NoError(t, err)

	deps := transaction.Deps{
		Ledger:      h.ledger,
		Projector:   h.projector,
		TxManager:   s,
		Numerator:   memory.NewSequence(s),
		Procurement: h.procurement,
		Capability:  roles,
		Audit:       audit.NewRecorder(h.sink),
		Clock:       func() time.Time { return fixedNow },
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.engine = transaction.NewEngine(deps)
	h.sm = h.engine.StateMachine()
	return h
}

func as(actor string) context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{UserID: actor})
}

func ref(v id.ID) *id.ID { return &v }

func (h *harness) balance(t *testing.T, p, w id.ID) int64 {
	t.Helper()
	item, err := h.projector.Balance(context.Background(), p, w)
	require.NoError(t, err)
	return item.Quantity
}

// assertReplayMatches checks live balance == replay for every known pair.
func (h *harness) assertReplayMatches(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	pairs, err := h.projector.Pairs(ctx)
	require.NoError(t, err)
	for _, pair := range pairs {
		d, err := h.projector.Verify(ctx, pair.ProductID, pair.WarehouseID)
		require.NoError(t, err)
		assert.True(t, d.InSync(), "pair %s live=%d replay=%d", pair, d.Live, d.Replayed)
	}
}

func (h *harness) stock(t *testing.T, p, w id.ID, qty int64) {
	t.Helper()
	_, err := h.engine.Submit(as("clerk"), transaction.Request{
		Type: ledger.TypeCheckIn, ProductID: p, TargetWarehouseID: ref(w), Quantity: qty,
		ReasonCode: "OPENING", Explanation: "opening balance count",
	})
	require.NoError(t, err)
}

func directCheckOut(p, w id.ID, qty int64) transaction.Request {
	return transaction.Request{
		Type: ledger.TypeCheckOut, ProductID: p, SourceWarehouseID: ref(w), Quantity: qty,
		ReasonCode: "DAMAGE", Explanation: "water damaged in storage",
	}
}

func requestCheckOut(p, w id.ID, qty int64) transaction.Request {
	return transaction.Request{
		Type: ledger.TypeCheckOut, ProductID: p, SourceWarehouseID: ref(w), Quantity: qty,
		LinkedRequestID: ref(id.New()),
	}
}

func TestScenario_CheckOutApproveTransfer(t *testing.T) {
	h := newHarness(t)
	p1, w1, w2 := id.New(), id.New(), id.New()
	h.stock(t, p1, w1, 10)

	// Direct checkout of 4 is approved on submission.
	out, err := h.engine.Submit(as("clerk"), directCheckOut(p1, w1, 4))
	require.NoError(t, err)
	assert.Equal(t, ledger.ApprovalApproved, out.ApprovalStatus)
	assert.Equal(t, ledger.DeliveryPending, out.DeliveryStatus)
	assert.Equal(t, int64(6), h.balance(t, p1, w1))

	// Pending checkout of 10 cannot be approved.
	pending, err := h.engine.Submit(as("clerk"), requestCheckOut(p1, w1, 10))
	require.NoError(t, err)
	assert.Equal(t, ledger.ApprovalPending, pending.ApprovalStatus)
	assert.Equal(t, int64(6), h.balance(t, p1, w1), "pending checkouts do not touch stock")

	_, err = h.sm.Approve(as("manager"), pending.ID)
	require.ErrorIs(t, err, apperror.ErrInsufficientStock)
	assert.Equal(t, int64(6), h.balance(t, p1, w1))

	still, err := h.engine.Get(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ApprovalPending, still.ApprovalStatus)
	assert.Equal(t, ledger.DeliveryNone, still.DeliveryStatus)

	// Transfer of 6 empties W1 into W2.
	_, err = h.engine.Submit(as("clerk"), transaction.Request{
		Type: ledger.TypeTransfer, ProductID: p1, SourceWarehouseID: ref(w1), TargetWarehouseID: ref(w2), Quantity: 6,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.balance(t, p1, w1))
	assert.Equal(t, int64(6), h.balance(t, p1, w2))

	h.assertReplayMatches(t)
}

func TestScenario_BatchExpiringSoon(t *testing.T) {
	h := newHarness(t)
	p1, w1 := id.New(), id.New()
	expiry := fixedNow.AddDate(0, 0, 10)

	_, err := h.engine.Submit(as("clerk"), transaction.Request{
		Type: ledger.TypeCheckIn, ProductID: p1, TargetWarehouseID: ref(w1), Quantity: 20,
		ReasonCode: "DONATION", Explanation: "donated by partner clinic",
		BatchNumber: "B100", ExpiryDate: &expiry,
	})
	require.NoError(t, err)

	req := requestCheckOut(p1, w1, 5)
	req.BatchNumber = "B100"
	out, err := h.engine.Submit(as("clerk"), req)
	require.NoError(t, err)
	_, err = h.sm.Approve(as("manager"), out.ID)
	require.NoError(t, err)

	batches, err := h.batches.ProjectBatches(context.Background(), p1, w1)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "B100", batches[0].BatchNumber)
	assert.Equal(t, int64(15), batches[0].Quantity)
	assert.Equal(t, batch.StatusExpiringSoon, batches[0].Status)
}

func TestSubmit_SameWarehouseTransferWritesNothing(t *testing.T) {
	h := newHarness(t)
	p, w := id.New(), id.New()
	h.stock(t, p, w, 5)

	_, err := h.engine.Submit(as("clerk"), transaction.Request{
		Type: ledger.TypeTransfer, ProductID: p, SourceWarehouseID: ref(w), TargetWarehouseID: ref(w), Quantity: 1,
	})
	require.ErrorIs(t, err, apperror.ErrSameWarehouse)

	_, total, err := h.engine.List(context.Background(), ledger.Filter{Type: ledger.TypeTransfer})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, int64(5), h.balance(t, p, w))
}

func TestSubmit_InsufficientStockWritesNothing(t *testing.T) {
	h := newHarness(t)
	p, w1, w2 := id.New(), id.New(), id.New()
	h.stock(t, p, w1, 2)

	_, err := h.engine.Submit(as("clerk"), transaction.Request{
		Type: ledger.TypeTransfer, ProductID: p, SourceWarehouseID: ref(w1), TargetWarehouseID: ref(w2), Quantity: 3,
	})
	require.ErrorIs(t, err, apperror.ErrInsufficientStock)

	_, err = h.engine.Submit(as("clerk"), directCheckOut(p, w1, 3))
	require.ErrorIs(t, err, apperror.ErrInsufficientStock)

	// Auto-approval failing on stock rejects the whole submission.
	_, err = h.engine.Submit(as("manager"), requestCheckOut(p, w1, 3))
	require.ErrorIs(t, err, apperror.ErrInsufficientStock)

	_, total, err := h.engine.List(context.Background(), ledger.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total, "only the opening check-in exists")
	assert.Equal(t, int64(2), h.balance(t, p, w1))
	assert.Equal(t, int64(0), h.balance(t, p, w2))

	next, err := h.engine.Submit(as("clerk"), directCheckOut(p, w1, 1))
	require.NoError(t, err)
	assert.Equal(t, "CO-2026-00001", next.Number, "failed submissions release their numbers")
}

func TestSubmit_AutoApprovalCapability(t *testing.T) {
	h := newHarness(t)
	p, w := id.New(), id.New()
	h.stock(t, p, w, 10)

	byManager, err := h.engine.Submit(as("manager"), requestCheckOut(p, w, 3))
	require.NoError(t, err)
	assert.Equal(t, ledger.ApprovalApproved, byManager.ApprovalStatus)
	assert.Equal(t, "manager", byManager.DecidedBy)

	byClerk, err := h.engine.Submit(as("clerk"), requestCheckOut(p, w, 3))
	require.NoError(t, err)
	assert.Equal(t, ledger.ApprovalPending, byClerk.ApprovalStatus)

	assert.Equal(t, int64(7), h.balance(t, p, w))
	assert.Equal(t, []audit.Action{audit.ActionSubmitted, audit.ActionApproved}, h.sink.ForEntry(byManager.ID))
	assert.Equal(t, []audit.Action{audit.ActionSubmitted}, h.sink.ForEntry(byClerk.ID))
}

func TestSubmit_CapabilityErrorRejectsSubmission(t *testing.T) {
	h := newHarness(t, func(d *transaction.Deps) {
		d.Capability = transaction.CapabilityFunc(func(context.Context, string) (bool, error) {
			return false, errors.New("directory unavailable")
		})
	})

	_, err := h.engine.Submit(as("clerk"), requestCheckOut(id.New(), id.New(), 1))
	assert.ErrorContains(t, err, "directory unavailable")
}

func TestSubmit_PurchaseOrderLine(t *testing.T) {
	h := newHarness(t)
	ctx := as("clerk")
	p, w, line := id.New(), id.New(), id.New()
	require.NoError(t, h.procurement.AddLine(ctx, line, 10))

	receive := func(qty int64) (*ledger.Entry, error) {
		return h.engine.Submit(ctx, transaction.Request{
			Type: ledger.TypeCheckIn, ProductID: p, TargetWarehouseID: ref(w), Quantity: qty, POLineID: ref(line),
		})
	}

	_, err := receive(7)
	require.NoError(t, err)

	_, err = receive(4)
	require.ErrorIs(t, err, apperror.ErrExceedsPending)
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, int64(3), appErr.Details["outstanding"])

	_, err = receive(3)
	require.NoError(t, err)
	assert.Equal(t, int64(10), h.balance(t, p, w))

	_, err = h.engine.Submit(ctx, transaction.Request{
		Type: ledger.TypeCheckIn, ProductID: p, TargetWarehouseID: ref(w), Quantity: 1, POLineID: ref(id.New()),
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSubmit_AuditRequirement(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Submit(as("clerk"), transaction.Request{
		Type: ledger.TypeCheckIn, ProductID: id.New(), TargetWarehouseID: ref(id.New()), Quantity: 1,
		ReasonCode: "ADJ", Explanation: "short",
	})
	assert.ErrorIs(t, err, apperror.ErrAuditRequirementNotMet)
}

func TestSubmit_NumbersPerType(t *testing.T) {
	h := newHarness(t)
	p, w1, w2 := id.New(), id.New(), id.New()
	h.stock(t, p, w1, 5)

	in2, err := h.engine.Submit(as("clerk"), transaction.Request{
		Type: ledger.TypeCheckIn, ProductID: p, TargetWarehouseID: ref(w1), Quantity: 1,
		ReasonCode: "ADJ", Explanation: "recount of shelf A",
	})
	require.NoError(t, err)
	tr, err := h.engine.Submit(as("clerk"), transaction.Request{
		Type: ledger.TypeTransfer, ProductID: p, SourceWarehouseID: ref(w1), TargetWarehouseID: ref(w2), Quantity: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, "CI-2026-00002", in2.Number)
	assert.Equal(t, "TR-2026-00001", tr.Number)
	assert.Equal(t, "clerk", tr.ActorID)
}

func TestApprove_ConcurrentApprovalsOnlyOneFits(t *testing.T) {
	h := newHarness(t)
	p, w := id.New(), id.New()
	h.stock(t, p, w, 10)

	a, err := h.engine.Submit(as("clerk"), requestCheckOut(p, w, 6))
	require.NoError(t, err)
	b, err := h.engine.Submit(as("clerk"), requestCheckOut(p, w, 6))
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, entryID := range []id.ID{a.ID, b.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.sm.Approve(as("manager"), entryID)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperror.ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(4), h.balance(t, p, w))
	h.assertReplayMatches(t)
}

func TestApprove_SameEntryRaceHasOneWinner(t *testing.T) {
	h := newHarness(t)
	p, w := id.New(), id.New()
	h.stock(t, p, w, 100)

	e, err := h.engine.Submit(as("clerk"), requestCheckOut(p, w, 5))
	require.NoError(t, err)

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.sm.Approve(as("manager"), e.ID)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(95), h.balance(t, p, w), "stock decremented exactly once")
}

func TestReject(t *testing.T) {
	h := newHarness(t)
	p, w := id.New(), id.New()
	h.stock(t, p, w, 5)

	e, err := h.engine.Submit(as("clerk"), requestCheckOut(p, w, 2))
	require.NoError(t, err)

	rejected, err := h.sm.Reject(as("manager"), e.ID, "not budgeted")
	require.NoError(t, err)
	assert.Equal(t, ledger.ApprovalRejected, rejected.ApprovalStatus)
	assert.Equal(t, "not budgeted", rejected.ApprovalNotes)
	assert.Equal(t, "manager", rejected.DecidedBy)
	assert.Equal(t, int64(5), h.balance(t, p, w))

	_, err = h.sm.Approve(as("manager"), e.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
	_, err = h.sm.Reject(as("manager"), e.ID, "again")
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
	_, err = h.sm.RecordDelivery(as("manager"), e.ID, ledger.DeliveryDetails{})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestTransitions_OnlyForCheckOuts(t *testing.T) {
	h := newHarness(t)
	p, w := id.New(), id.New()
	h.stock(t, p, w, 5)

	entries, _, err := h.engine.List(context.Background(), ledger.Filter{Type: ledger.TypeCheckIn})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = h.sm.RecordDelivery(as("manager"), entries[0].ID, ledger.DeliveryDetails{RecipientName: "x"})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	_, err = h.sm.Approve(as("manager"), id.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRecordDelivery_Twice(t *testing.T) {
	h := newHarness(t)
	p, w := id.New(), id.New()
	h.stock(t, p, w, 5)

	e, err := h.engine.Submit(as("clerk"), directCheckOut(p, w, 2))
	require.NoError(t, err)

	first, err := h.sm.RecordDelivery(as("clerk"), e.ID, ledger.DeliveryDetails{
		RecipientName: "Dr. Osei", RecipientDepartment: "Pediatrics", BatchNumber: "B7",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.DeliveryDelivered, first.DeliveryStatus)
	require.NotNil(t, first.DeliveryDetails.DeliveredAt)

	_, err = h.sm.RecordDelivery(as("clerk"), e.ID, ledger.DeliveryDetails{RecipientName: "Someone else"})
	require.ErrorIs(t, err, apperror.ErrAlreadyDelivered)

	again, err := h.engine.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, first.DeliveryDetails, again.DeliveryDetails)
	assert.Equal(t, int64(3), h.balance(t, p, w), "delivery has no stock effect")
}

func TestRecordDelivery_BatchCannotBeRewritten(t *testing.T) {
	h := newHarness(t)
	p, w := id.New(), id.New()
	expiry := fixedNow.AddDate(0, 6, 0)

	_, err := h.engine.Submit(as("clerk"), transaction.Request{
		Type: ledger.TypeCheckIn, ProductID: p, TargetWarehouseID: ref(w), Quantity: 20,
		ReasonCode: "DONATION", Explanation: "donated by partner clinic",
		BatchNumber: "B100", ExpiryDate: &expiry,
	})
	require.NoError(t, err)

	req := directCheckOut(p, w, 5)
	req.BatchNumber = "B100"
	req.ExpiryDate = &expiry
	out, err := h.engine.Submit(as("clerk"), req)
	require.NoError(t, err)

	_, err = h.sm.RecordDelivery(as("clerk"), out.ID, ledger.DeliveryDetails{RecipientName: "Ward 3", BatchNumber: "B999"})
	require.ErrorIs(t, err, apperror.ErrInvalidTransition)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "batch_number", appErr.Details["field"])

	later := expiry.AddDate(1, 0, 0)
	_, err = h.sm.RecordDelivery(as("clerk"), out.ID, ledger.DeliveryDetails{RecipientName: "Ward 3", ExpiryDate: &later})
	require.ErrorIs(t, err, apperror.ErrInvalidTransition)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "expiry_date", appErr.Details["field"])

	_, err = h.sm.RecordDelivery(as("clerk"), out.ID, ledger.DeliveryDetails{RecipientName: "Ward 3", BatchNumber: batch.Unbatched})
	require.ErrorIs(t, err, apperror.NewValidation(""))

	current, err := h.engine.Get(context.Background(), out.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.DeliveryNone, current.DeliveryStatus)
	assert.Equal(t, "B100", current.BatchNumber())

	batches, err := h.batches.ProjectBatches(context.Background(), p, w)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "B100", batches[0].BatchNumber)
	assert.Equal(t, int64(15), batches[0].Quantity)
	assert.Equal(t, int64(15), h.balance(t, p, w))

	// Repeating the admitted batch is not a change.
	delivered, err := h.sm.RecordDelivery(as("clerk"), out.ID, ledger.DeliveryDetails{RecipientName: "Ward 3", BatchNumber: "B100"})
	require.NoError(t, err)
	assert.Equal(t, ledger.DeliveryDelivered, delivered.DeliveryStatus)
	assert.Equal(t, "B100", delivered.BatchNumber())
	assert.Equal(t, &expiry, delivered.DeliveryDetails.ExpiryDate)
}

func TestRecordDelivery_FillsMissingBatch(t *testing.T) {
	h := newHarness(t)
	p, w := id.New(), id.New()
	expiry := fixedNow.AddDate(0, 6, 0)

	_, err := h.engine.Submit(as("clerk"), transaction.Request{
		Type: ledger.TypeCheckIn, ProductID: p, TargetWarehouseID: ref(w), Quantity: 20,
		ReasonCode: "DONATION", Explanation: "donated by partner clinic",
		BatchNumber: "B100", ExpiryDate: &expiry,
	})
	require.NoError(t, err)

	out, err := h.engine.Submit(as("clerk"), directCheckOut(p, w, 5))
	require.NoError(t, err)
	assert.Empty(t, out.BatchNumber())

	delivered, err := h.sm.RecordDelivery(as("clerk"), out.ID, ledger.DeliveryDetails{
		RecipientName: "Ward 3", BatchNumber: " B100 ", ExpiryDate: &expiry,
	})
	require.NoError(t, err)
	assert.Equal(t, "B100", delivered.BatchNumber())
	assert.Equal(t, "Ward 3", delivered.DeliveryDetails.RecipientName)

	batches, err := h.batches.ProjectBatches(context.Background(), p, w)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "B100", batches[0].BatchNumber)
	assert.Equal(t, int64(15), batches[0].Quantity)
	assert.Equal(t, int64(15), h.balance(t, p, w))
}

func TestRecordDelivery_RaceHasOneWinner(t *testing.T) {
	h := newHarness(t)
	p, w := id.New(), id.New()
	h.stock(t, p, w, 5)

	e, err := h.engine.Submit(as("clerk"), directCheckOut(p, w, 1))
	require.NoError(t, err)

	const racers = 6
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.sm.RecordDelivery(as("clerk"), e.ID, ledger.DeliveryDetails{RecipientName: fmt.Sprintf("r%d", i)})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperror.ErrAlreadyDelivered)
	}
	assert.Equal(t, 1, succeeded)
}

func TestRecordDelivery_RequiresApproval(t *testing.T) {
	h := newHarness(t)
	p, w := id.New(), id.New()
	h.stock(t, p, w, 5)

	e, err := h.engine.Submit(as("clerk"), requestCheckOut(p, w, 1))
	require.NoError(t, err)

	_, err = h.sm.RecordDelivery(as("clerk"), e.ID, ledger.DeliveryDetails{RecipientName: "x"})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestAuditFailureDoesNotFailOperations(t *testing.T) {
	h := newHarness(t)
	h.sink.Err = errors.New("audit store down")
	p, w := id.New(), id.New()

	h.stock(t, p, w, 3)
	e, err := h.engine.Submit(as("clerk"), requestCheckOut(p, w, 1))
	require.NoError(t, err)
	_, err = h.sm.Approve(as("manager"), e.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(2), h.balance(t, p, w))
	assert.Empty(t, h.sink.Events())
}

func TestReplayEquivalenceUnderConcurrentLoad(t *testing.T) {
	h := newHarness(t)
	p := id.New()
	warehouses := []id.ID{id.New(), id.New(), id.New()}
	for _, w := range warehouses {
		h.stock(t, p, w, 20)
	}

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			from := warehouses[i%3]
			to := warehouses[(i+1)%3]
			switch i % 4 {
			case 0:
				_, _ = h.engine.Submit(as("clerk"), transaction.Request{
					Type: ledger.TypeTransfer, ProductID: p, SourceWarehouseID: ref(from), TargetWarehouseID: ref(to), Quantity: int64(i%7 + 1),
				})
			case 1:
				_, _ = h.engine.Submit(as("clerk"), directCheckOut(p, from, int64(i%5+1)))
			case 2:
				e, err := h.engine.Submit(as("clerk"), requestCheckOut(p, from, int64(i%6+1)))
				if err == nil {
					_, _ = h.sm.Approve(as("manager"), e.ID)
				}
			default:
				_, _ = h.engine.Submit(as("clerk"), transaction.Request{
					Type: ledger.TypeCheckIn, ProductID: p, TargetWarehouseID: ref(to), Quantity: 2,
					ReasonCode: "RECOUNT", Explanation: "found during cycle count",
				})
			}
		}()
	}
	wg.Wait()

	var total int64
	for _, w := range warehouses {
		q := h.balance(t, p, w)
		assert.GreaterOrEqual(t, q, int64(0))
		total += q
	}
	h.assertReplayMatches(t)

	// Conservation: stock in = opening + check-ins - approved check-outs.
	entries, _, err := h.engine.List(context.Background(), ledger.Filter{Limit: ledger.MaxListLimit})
	require.NoError(t, err)
	var net int64
	for _, e := range entries {
		if !e.IsApplied() {
			continue
		}
		switch e.Type {
		case ledger.TypeCheckIn:
			net += e.Quantity
		case ledger.TypeCheckOut:
			net -= e.Quantity
		}
	}
	assert.Equal(t, net, total)
}

func TestList_ApprovalQueue(t *testing.T) {
	h := newHarness(t)
	p, w := id.New(), id.New()
	h.stock(t, p, w, 10)

	for i := 0; i < 3; i++ {
		_, err := h.engine.Submit(as("clerk"), requestCheckOut(p, w, 1))
		require.NoError(t, err)
	}

	queue, total, err := h.engine.List(context.Background(), ledger.Filter{
		Type: ledger.TypeCheckOut, ApprovalStatus: ledger.ApprovalPending, WarehouseID: ref(w), Limit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, queue, 2)
}
