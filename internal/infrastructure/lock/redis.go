// Package lock provides a distributed keylock.Locker backed by Redis, for
// deployments that run several API or worker processes against one database.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/keylock"
	"stockledger/pkg/logger"
)

// Config configures the Redis locker.
type Config struct {
	// Prefix namespaces lock keys, e.g. "stockledger:lock:".
	Prefix string

	// TTL bounds how long a crashed holder blocks a key.
	TTL time.Duration

	// Wait caps how long Acquire waits for one key. Zero waits until ctx is done.
	Wait time.Duration

	// Backoff is the delay between attempts on a busy key.
	Backoff time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Prefix:  "stockledger:lock:",
		TTL:     30 * time.Second,
		Wait:    10 * time.Second,
		Backoff: 25 * time.Millisecond,
	}
}

// Redis implements keylock.Locker with bsm/redislock.
type Redis struct {
	client *redislock.Client
	cfg    Config
}

var _ keylock.Locker = (*Redis)(nil)

// NewRedis creates a locker on top of a go-redis client.
func NewRedis(client redis.Scripter, cfg Config) *Redis {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultConfig().Backoff
	}
	return &Redis{client: redislock.New(client), cfg: cfg}
}

// Acquire implements keylock.Locker.
func (r *Redis) Acquire(ctx context.Context, keys ...string) (context.Context, func(), error) {
	pending := keylock.Pending(ctx, keys)
	if len(pending) == 0 {
		return ctx, func() {}, nil
	}

	locks := make([]*redislock.Lock, 0, len(pending))
	for _, k := range pending {
		l, err := r.obtain(ctx, k)
		if err != nil {
			r.release(ctx, locks)
			return ctx, nil, err
		}
		locks = append(locks, l)
	}

	var once sync.Once
	return keylock.WithHeld(ctx, pending), func() {
		once.Do(func() { r.release(ctx, locks) })
	}, nil
}

func (r *Redis) obtain(ctx context.Context, key string) (*redislock.Lock, error) {
	waitCtx := ctx
	if r.cfg.Wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.cfg.Wait)
		defer cancel()
	}

	l, err := r.client.Obtain(waitCtx, r.cfg.Prefix+key, r.cfg.TTL, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.cfg.Backoff),
	})
	switch {
	case err == nil:
		return l, nil
	case errors.Is(err, redislock.ErrNotObtained), errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, apperror.NewConcurrentModification("lock", key).WithCause(err)
	default:
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
}

// release runs on a detached context so a cancelled request still frees its keys.
func (r *Redis) release(ctx context.Context, locks []*redislock.Lock) {
	releaseCtx := context.WithoutCancel(ctx)
	for i := len(locks) - 1; i >= 0; i-- {
		if err := locks[i].Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Warn(ctx, "release redis lock failed", "key", locks[i].Key(), "error", err)
		}
	}
}
