package lock

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/keylock"
)

// downScripter fails every script call like an unreachable server.
type downScripter struct {
	redis.Scripter
	calls int
}

func (d *downScripter) fail(ctx context.Context) *redis.Cmd {
	d.calls++
	cmd := redis.NewCmd(ctx)
	cmd.SetErr(errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"))
	return cmd
}

func (d *downScripter) Eval(ctx context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return d.fail(ctx)
}

func (d *downScripter) EvalSha(ctx context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	return d.fail(ctx)
}

func TestRedis_HeldKeysSkipRedis(t *testing.T) {
	client := &downScripter{}
	l := NewRedis(client, DefaultConfig())

	ctx := keylock.WithHeld(context.Background(), []string{"stock:a:b"})
	got, release, err := l.Acquire(ctx, "stock:a:b")
	require.NoError(t, err)
	release()

	assert.Equal(t, ctx, got)
	assert.Zero(t, client.calls)
}

func TestRedis_UnreachableServer(t *testing.T) {
	client := &downScripter{}
	l := NewRedis(client, DefaultConfig())

	_, release, err := l.Acquire(context.Background(), "entry:1")
	assert.ErrorContains(t, err, "connection refused")
	assert.Nil(t, release)
	assert.Positive(t, client.calls)
}
