package memory

import (
	"context"
	"time"

	"stockledger/internal/core/numerator"
)

// Sequence implements numerator.Generator over a Store. Numbers issued inside
// a transaction that rolls back are returned to the sequence.
type Sequence struct {
	s *Store
}

var _ numerator.Generator = (*Sequence)(nil)

// NewSequence creates a numbering generator.
func NewSequence(s *Store) *Sequence {
	return &Sequence{s: s}
}

// GetNextNumber implements numerator.Generator.
func (q *Sequence) GetNextNumber(ctx context.Context, cfg numerator.Config, _ *numerator.Options, period time.Time) (string, error) {
	key := numerator.Key(cfg, period)
	var n int64
	err := q.s.update(ctx, func(t *txState) error {
		q.s.sequences[key]++
		n = q.s.sequences[key]
		t.onRollback(func() { q.s.sequences[key]-- })
		return nil
	})
	if err != nil {
		return "", err
	}
	return numerator.Format(cfg, period, n), nil
}

// SetNextNumber implements numerator.Generator.
func (q *Sequence) SetNextNumber(ctx context.Context, cfg numerator.Config, period time.Time, value int64) error {
	key := numerator.Key(cfg, period)
	return q.s.update(ctx, func(t *txState) error {
		prev := q.s.sequences[key]
		q.s.sequences[key] = value
		t.onRollback(func() { q.s.sequences[key] = prev })
		return nil
	})
}
