// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces; the Postgres and in-memory
// stores provide the implementations.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// If fn returns an error, every write made through ctx is rolled back.
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
// Projections use it to read a consistent snapshot of the ledger.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// RetryPolicy decides whether a failed transaction should run again.
type RetryPolicy struct {
	// Attempts is the total number of runs, including the first one.
	Attempts int

	// Retryable reports whether err is a transient conflict.
	Retryable func(err error) bool
}

// RunWithRetry runs fn in a transaction, re-running it while the policy
// classifies the error as retryable and attempts remain.
func RunWithRetry(ctx context.Context, m Manager, policy RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = m.RunInTransaction(ctx, fn)
		if err == nil || policy.Retryable == nil || !policy.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
