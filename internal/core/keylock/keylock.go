// Package keylock serializes work per logical key (a stock pair, a ledger entry,
// a purchase-order line).
//
// Acquire locks keys in sorted order so callers holding several keys never
// deadlock against each other. Keys already held by the calling context are
// skipped, which makes nested acquisition from the same operation safe.
package keylock

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"stockledger/internal/core/id"
)

// Locker acquires exclusive ownership of a set of keys.
type Locker interface {
	// Acquire blocks until every key is held. The returned context records the
	// held keys; release must be called exactly once.
	Acquire(ctx context.Context, keys ...string) (context.Context, func(), error)
}

// StockKey names the lock guarding one (product, warehouse) aggregate.
func StockKey(productID, warehouseID id.ID) string {
	return fmt.Sprintf("stock:%s:%s", productID, warehouseID)
}

// EntryKey names the lock guarding status transitions of one ledger entry.
func EntryKey(entryID id.ID) string {
	return "entry:" + entryID.String()
}

// POLineKey names the lock guarding receipts against one purchase-order line.
func POLineKey(lineID id.ID) string {
	return "poline:" + lineID.String()
}

type heldKey struct{}

type heldSet map[string]struct{}

// Held reports whether ctx already owns key.
func Held(ctx context.Context, key string) bool {
	held, _ := ctx.Value(heldKey{}).(heldSet)
	_, ok := held[key]
	return ok
}

// Pending returns the sorted, de-duplicated keys ctx does not hold yet.
func Pending(ctx context.Context, keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || Held(ctx, k) {
			continue
		}
		out = append(out, k)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// WithHeld returns a context recording keys as held in addition to those
// already held by ctx.
func WithHeld(ctx context.Context, keys []string) context.Context {
	if len(keys) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(heldKey{}).(heldSet)
	next := make(heldSet, len(prev)+len(keys))
	for k := range prev {
		next[k] = struct{}{}
	}
	for _, k := range keys {
		next[k] = struct{}{}
	}
	return context.WithValue(ctx, heldKey{}, next)
}

// Local is an in-process Locker backed by reference-counted mutexes.
// Entries are removed when the last holder or waiter releases them.
type Local struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	mu   sync.Mutex
	refs int
}

// NewLocal creates an in-process key locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*localEntry)}
}

// Acquire implements Locker.
func (l *Local) Acquire(ctx context.Context, keys ...string) (context.Context, func(), error) {
	pending := Pending(ctx, keys)
	if len(pending) == 0 {
		return ctx, func() {}, nil
	}

	acquired := make([]string, 0, len(pending))
	for _, k := range pending {
		if err := ctx.Err(); err != nil {
			l.release(acquired)
			return ctx, nil, fmt.Errorf("acquire %s: %w", k, err)
		}
		l.lock(k)
		acquired = append(acquired, k)
	}

	var once sync.Once
	return WithHeld(ctx, acquired), func() {
		once.Do(func() { l.release(acquired) })
	}, nil
}

func (l *Local) lock(key string) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
}

func (l *Local) release(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		l.mu.Lock()
		e := l.locks[keys[i]]
		e.refs--
		if e.refs == 0 {
			delete(l.locks, keys[i])
		}
		l.mu.Unlock()
		e.mu.Unlock()
	}
}

// Size returns the number of keys currently held or awaited.
func (l *Local) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

var _ Locker = (*Local)(nil)
