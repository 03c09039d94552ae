// Package memory provides an in-process implementation of the ledger, balance,
// numbering and procurement stores. It backs STORAGE_BACKEND=memory and the
// domain tests.
//
// Writers are serialized by one store-wide lock held for the whole
// transaction; every mutation records an undo step so a failed transaction
// leaves no trace.
package memory

import (
	"context"
	"errors"
	"sync"

	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
)

// Store holds all in-memory state.
type Store struct {
	mu sync.RWMutex

	entries map[id.ID]*ledger.Entry
	order   []id.ID

	items map[ledger.Pair]balance.Item

	sequences map[string]int64
	poLines   map[id.ID]int64
}

var _ tx.ReadOnlyManager = (*Store)(nil)

// ErrWriteInReadOnly is returned when a write is attempted inside ReadOnly.
var ErrWriteInReadOnly = errors.New("memory: write inside read-only transaction")

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries:   make(map[id.ID]*ledger.Entry),
		items:     make(map[ledger.Pair]balance.Item),
		sequences: make(map[string]int64),
		poLines:   make(map[id.ID]int64),
	}
}

type txKey struct{ s *Store }

type txState struct {
	readOnly bool
	undo     []func()
}

func (t *txState) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *txState) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (s *Store) txFrom(ctx context.Context) *txState {
	t, _ := ctx.Value(txKey{s}).(*txState)
	return t
}

// RunInTransaction implements tx.Manager.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if t := s.txFrom(ctx); t != nil {
		if t.readOnly {
			return ErrWriteInReadOnly
		}
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &txState{}
	defer func() {
		if r := recover(); r != nil {
			t.rollback()
			panic(r)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{s}, t)); err != nil {
		t.rollback()
		return err
	}
	return nil
}

// ReadOnly implements tx.ReadOnlyManager. fn sees a consistent snapshot.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(context.WithValue(ctx, txKey{s}, &txState{readOnly: true}))
}

// view runs fn under the read lock unless ctx already holds the store.
func (s *Store) view(ctx context.Context, fn func()) {
	if s.txFrom(ctx) != nil {
		fn()
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

// update runs fn inside a write transaction, joining the one in ctx if any.
func (s *Store) update(ctx context.Context, fn func(t *txState) error) error {
	return s.RunInTransaction(ctx, func(ctx context.Context) error {
		return fn(s.txFrom(ctx))
	})
}
