// Package main provides a CLI tool for seeding the ledger with demo data.
// Every write goes through the transaction engine, so balances, numbering
// and audit are produced exactly as in production.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"stockledger/internal/app"
	"stockledger/internal/config"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/auth"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/transaction"
	"stockledger/pkg/logger"
)

// Fixed ids keep the demo data stable across runs.
var (
	demoProduct     = id.MustParse("0190a1b2-0000-7000-8000-000000000001")
	demoMainStore   = id.MustParse("0190a1b2-0000-7000-8000-0000000000a1")
	demoWardStore   = id.MustParse("0190a1b2-0000-7000-8000-0000000000a2")
	demoPOLineFirst = id.MustParse("0190a1b2-0000-7000-8000-0000000000b1")
	demoPOLineNext  = id.MustParse("0190a1b2-0000-7000-8000-0000000000b2")
)

const seedActor = "seed"

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("invalid configuration", "error", err)
	}
	if cfg.Database.Backend == config.StorageMemory {
		log.Warn("memory backend: seeded data is discarded on exit")
	}

	ctx := appctx.WithTrace(context.Background(), appctx.NewTraceContext())
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: seedActor, IsAdmin: true})

	stack, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to build ledger stack", "error", err)
	}
	defer stack.Close()

	if err := seedDemoData(ctx, stack, log); err != nil {
		log.Fatalw("failed to seed demo data", "error", err)
	}

	token, expiresAt, err := stack.JWT.GenerateAccessToken(appctx.UserContext{
		UserID: "demo-admin",
		Email:  "admin@stockledger.local",
		Roles:  []string{"admin"},
		Permissions: []string{
			auth.PermInventorySubmit,
			auth.PermInventoryApprove,
			auth.PermInventoryDeliver,
		},
		IsAdmin: true,
	})
	if err != nil {
		log.Fatalw("failed to issue demo token", "error", err)
	}

	fmt.Println("Demo access token (expires " + expiresAt.Format(time.RFC3339) + "):")
	fmt.Println(token)
}

func seedDemoData(ctx context.Context, stack *app.Stack, log *logger.Logger) error {
	_, existing, err := stack.Engine.List(ctx, ledger.Filter{ProductID: &demoProduct, Limit: 1})
	if err != nil {
		return fmt.Errorf("check existing data: %w", err)
	}
	if existing > 0 {
		log.Infow("demo data already present, skipping", "entries", existing)
		return nil
	}

	lines := []struct {
		id      id.ID
		ordered int64
	}{
		{demoPOLineFirst, 100},
		{demoPOLineNext, 40},
	}
	for _, l := range lines {
		if err := stack.Procurement.AddLine(ctx, l.id, l.ordered); err != nil {
			return fmt.Errorf("add po line %s: %w", l.id, err)
		}
	}
	log.Infow("purchase order lines seeded", "count", len(lines))

	expiry := time.Now().UTC().AddDate(0, 0, 20).Truncate(24 * time.Hour)
	requests := []transaction.Request{
		{
			Type: ledger.TypeCheckIn, ProductID: demoProduct, TargetWarehouseID: &demoMainStore,
			Quantity: 100, POLineID: &demoPOLineFirst, Reference: "PO-1001",
			BatchNumber: "B100",
		},
		{
			Type: ledger.TypeCheckIn, ProductID: demoProduct, TargetWarehouseID: &demoMainStore,
			Quantity: 25, POLineID: &demoPOLineNext, Reference: "PO-1002",
			BatchNumber: "B200", ExpiryDate: &expiry,
		},
		{
			Type: ledger.TypeTransfer, ProductID: demoProduct,
			SourceWarehouseID: &demoMainStore, TargetWarehouseID: &demoWardStore,
			Quantity: 10, ReasonCode: "REPLENISH", Explanation: "weekly ward replenishment",
		},
		{
			Type: ledger.TypeCheckOut, ProductID: demoProduct, SourceWarehouseID: &demoWardStore,
			Quantity: 4, LinkedRequestID: ptr(id.New()), ActorID: "nurse-1",
		},
	}

	for _, req := range requests {
		entry, err := stack.Engine.Submit(ctx, req)
		if err != nil {
			return fmt.Errorf("submit %s: %w", req.Type, err)
		}
		log.Infow("entry seeded",
			"number", entry.Number,
			"type", entry.Type,
			"quantity", entry.Quantity,
			"approval_status", entry.ApprovalStatus,
		)
	}

	for _, wh := range []id.ID{demoMainStore, demoWardStore} {
		item, err := stack.Balances.Balance(ctx, demoProduct, wh)
		if err != nil {
			return err
		}
		log.Infow("balance", "warehouse_id", wh, "quantity", item.Quantity)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
