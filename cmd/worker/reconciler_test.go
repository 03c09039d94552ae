package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

type fakeChecker struct {
	pairs    []ledger.Pair
	drift    map[ledger.Pair]balance.Drift
	failing  map[ledger.Pair]bool
	repaired []ledger.Pair
}

func (f *fakeChecker) Pairs(context.Context) ([]ledger.Pair, error) {
	return f.pairs, nil
}

func (f *fakeChecker) Verify(_ context.Context, p, w id.ID) (balance.Drift, error) {
	pair := ledger.Pair{ProductID: p, WarehouseID: w}
	if f.failing[pair] {
		return balance.Drift{}, errors.New("db down")
	}
	if d, ok := f.drift[pair]; ok {
		return d, nil
	}
	return balance.Drift{Pair: pair}, nil
}

func (f *fakeChecker) Repair(_ context.Context, p, w id.ID) (balance.Drift, error) {
	pair := ledger.Pair{ProductID: p, WarehouseID: w}
	f.repaired = append(f.repaired, pair)
	d := f.drift[pair]
	d.Repaired = true
	return d, nil
}

type countingCleaner struct{ calls int }

func (c *countingCleaner) CleanupExpired(context.Context) (int64, error) {
	c.calls++
	return 2, nil
}

func newPair() ledger.Pair {
	return ledger.Pair{ProductID: id.New(), WarehouseID: id.New()}
}

func TestReconciler_ReportsDrift(t *testing.T) {
	ok, drifted, broken := newPair(), newPair(), newPair()
	checker := &fakeChecker{
		pairs:   []ledger.Pair{ok, drifted, broken},
		drift:   map[ledger.Pair]balance.Drift{drifted: {Pair: drifted, Live: 5, Replayed: 3}},
		failing: map[ledger.Pair]bool{broken: true},
	}

	r := NewReconciler(checker, nil, time.Minute, false, logger.Default())
	report := r.Reconcile(context.Background())

	assert.Equal(t, Report{Checked: 3, Drifted: 1, Failed: 1}, report)
	assert.Empty(t, checker.repaired, "repair disabled")
}

func TestReconciler_RepairsWhenEnabled(t *testing.T) {
	drifted := newPair()
	checker := &fakeChecker{
		pairs: []ledger.Pair{drifted},
		drift: map[ledger.Pair]balance.Drift{drifted: {Pair: drifted, Live: 5, Replayed: 3}},
	}
	cleaner := &countingCleaner{}

	r := NewReconciler(checker, cleaner, time.Minute, true, logger.Default())
	report := r.Tick(context.Background())

	assert.Equal(t, 1, report.Repaired)
	require.Len(t, checker.repaired, 1)
	assert.Equal(t, drifted, checker.repaired[0])
	assert.Equal(t, 1, cleaner.calls)
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	checker := &fakeChecker{}
	r := NewReconciler(checker, nil, time.Hour, false, logger.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
