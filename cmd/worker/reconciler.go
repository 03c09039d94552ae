package main

import (
	"context"
	"time"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

// BalanceChecker compares live aggregates with their ledger replay.
// balance.Projector implements it.
type BalanceChecker interface {
	Pairs(ctx context.Context) ([]ledger.Pair, error)
	Verify(ctx context.Context, productID, warehouseID id.ID) (balance.Drift, error)
	Repair(ctx context.Context, productID, warehouseID id.ID) (balance.Drift, error)
}

// KeyCleaner removes expired idempotency keys.
type KeyCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Report summarises one reconciliation pass.
type Report struct {
	Checked  int
	Drifted  int
	Repaired int
	Failed   int
}

// Reconciler periodically checks every aggregate against its replay.
type Reconciler struct {
	checker  BalanceChecker
	cleaner  KeyCleaner
	repair   bool
	interval time.Duration
	log      *logger.Logger
}

// NewReconciler creates a reconciler. cleaner may be nil.
func NewReconciler(checker BalanceChecker, cleaner KeyCleaner, interval time.Duration, repair bool, log *logger.Logger) *Reconciler {
	return &Reconciler{
		checker:  checker,
		cleaner:  cleaner,
		repair:   repair,
		interval: interval,
		log:      log.WithComponent("reconciler"),
	}
}

// Run reconciles once immediately and then on every tick until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one reconciliation pass and one key cleanup under a fresh trace.
func (r *Reconciler) Tick(ctx context.Context) Report {
	trace := appctx.NewTraceContext()
	ctx = appctx.WithTrace(ctx, trace)

	report := r.Reconcile(ctx)
	r.log.Infow("reconciliation finished",
		"trace_id", trace.TraceID,
		"checked", report.Checked,
		"drifted", report.Drifted,
		"repaired", report.Repaired,
		"failed", report.Failed,
	)

	if r.cleaner != nil {
		n, err := r.cleaner.CleanupExpired(ctx)
		if err != nil {
			r.log.Errorw("idempotency cleanup failed", "error", err)
		} else if n > 0 {
			r.log.Infow("expired idempotency keys removed", "count", n)
		}
	}
	return report
}

// Reconcile verifies every pair and repairs drift when enabled.
// A failing pair is logged and does not stop the pass.
func (r *Reconciler) Reconcile(ctx context.Context) Report {
	var report Report

	pairs, err := r.checker.Pairs(ctx)
	if err != nil {
		r.log.Errorw("list pairs failed", "error", err)
		report.Failed++
		return report
	}

	for _, pair := range pairs {
		if ctx.Err() != nil {
			return report
		}
		report.Checked++

		d, err := r.checker.Verify(ctx, pair.ProductID, pair.WarehouseID)
		if err != nil {
			report.Failed++
			r.log.Errorw("verify failed", "pair", pair.String(), "error", err)
			continue
		}
		if d.InSync() {
			continue
		}

		report.Drifted++
		r.log.Warnw("balance drift detected", "pair", pair.String(), "live", d.Live, "replayed", d.Replayed)
		if !r.repair {
			continue
		}

		d, err = r.checker.Repair(ctx, pair.ProductID, pair.WarehouseID)
		if err != nil {
			report.Failed++
			r.log.Errorw("repair failed", "pair", pair.String(), "error", err)
			continue
		}
		if d.Repaired {
			report.Repaired++
		}
	}
	return report
}
