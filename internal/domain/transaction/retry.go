package transaction

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/ledger"
)

var tracer = otel.Tracer("stockledger/transaction")

// maxTxAttempts bounds whole-operation retries after serialization conflicts.
const maxTxAttempts = 3

var retryPolicy = tx.RetryPolicy{
	Attempts:  maxTxAttempts,
	Retryable: apperror.IsConcurrentModification,
}

// stockContention is what callers see when balance updates never settled.
func stockContention(e *ledger.Entry, cause error) error {
	return apperror.NewBusinessRule(apperror.CodeInsufficientStock, "Insufficient stock: concurrent updates did not settle").
		WithDetail("product_id", e.ProductID.String()).
		WithDetail("reason", "contention").
		WithCause(cause)
}

// isCanceled reports whether err stems from the caller giving up.
// The operation may still have committed; callers re-read the entry.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
