// Package main is the entry point for the stockledger background worker.
// It reconciles balances against the ledger and expires idempotency keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"stockledger/internal/app"
	"stockledger/internal/config"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Infow("starting stockledger worker",
		"interval", cfg.Reconcile.Interval,
		"repair", cfg.Reconcile.Repair,
	)

	stack, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to build ledger stack", "error", err)
	}
	defer stack.Close()

	var cleaner KeyCleaner
	if stack.Idempotency != nil {
		cleaner = stack.Idempotency
	}
	reconciler := NewReconciler(stack.Balances, cleaner, cfg.Reconcile.Interval, cfg.Reconcile.Repair, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reconciler.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}
