package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/config"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/transaction"
)

func memoryConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Env: "development"},
		Database: config.DatabaseConfig{Backend: config.StorageMemory},
		Lock:     config.LockConfig{Backend: config.LockLocal},
		Ledger:   config.LedgerConfig{AutoApproveRule: `"admin" in roles`, CASMaxAttempts: 3},
		Reconcile: config.ReconcileConfig{
			Interval: time.Minute,
		},
	}
}

func TestNew_MemoryBackend(t *testing.T) {
	stack, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer stack.Close()

	assert.Nil(t, stack.Pool)
	assert.Nil(t, stack.Idempotency)

	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "boss", Roles: []string{"admin"}})
	p, wh, line := id.New(), id.New(), id.New()
	require.NoError(t, stack.Procurement.AddLine(ctx, line, 10))

	in, err := stack.Engine.Submit(ctx, transaction.Request{
		Type: ledger.TypeCheckIn, ProductID: p, TargetWarehouseID: &wh, Quantity: 10, POLineID: &line,
	})
	require.NoError(t, err)
	assert.Regexp(t, `^CI-\d{4}-\d{5}$`, in.Number)

	// The admin role satisfies the configured rule.
	out, err := stack.Engine.Submit(ctx, transaction.Request{
		Type: ledger.TypeCheckOut, ProductID: p, SourceWarehouseID: &wh, Quantity: 4, LinkedRequestID: ptrID(id.New()),
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.ApprovalApproved, out.ApprovalStatus)

	item, err := stack.Balances.Balance(ctx, p, wh)
	require.NoError(t, err)
	assert.Equal(t, int64(6), item.Quantity)

	token, _, err := stack.JWT.GenerateAccessToken(appctx.UserContext{UserID: "boss"})
	require.NoError(t, err)
	user, err := stack.JWT.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "boss", user.UserID)
}

func TestNew_InvalidRule(t *testing.T) {
	cfg := memoryConfig()
	cfg.Ledger.AutoApproveRule = "roles +"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func ptrID(v id.ID) *id.ID { return &v }
