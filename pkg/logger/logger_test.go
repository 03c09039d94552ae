package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "stockledger/internal/core/context"
)

func TestFromContext_AddsTraceAndActor(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	ctx := WithLogger(context.Background(), NewFromCore(core))
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", RequestID: "r-1"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "u-1"})

	Info(ctx, "approved", "entry_id", "e-1")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, "u-1", fields["actor_id"])
	assert.Equal(t, "e-1", fields["entry_id"])
}

func TestLevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ctx := WithLogger(context.Background(), NewFromCore(core).WithComponent("worker"))

	Debug(ctx, "skipped")
	Info(ctx, "skipped")
	Warn(ctx, "kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "worker", logs.All()[0].ContextMap()["component"])
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	l, err := New(Config{Level: "loud", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Desugar().Core().Enabled(zapcore.InfoLevel))
}
