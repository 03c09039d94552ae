// Package audit records a write-once event for every admitted or transitioned
// ledger entry. Recording is best-effort: sink failures never fail the
// operation that produced the event.
package audit

import (
	"context"
	"reflect"
	"time"

	"stockledger/internal/core/id"
)

// Action is the kind of lifecycle step an event records.
type Action string

const (
	ActionSubmitted Action = "submitted"
	ActionApproved  Action = "approved"
	ActionRejected  Action = "rejected"
	ActionDelivered Action = "delivered"
)

// Event is one audit record.
type Event struct {
	ID          id.ID          `json:"id"`
	EntryID     id.ID          `json:"entry_id"`
	EntryNumber string         `json:"entry_number,omitempty"`
	EntryType   string         `json:"entry_type"`
	Action      Action         `json:"action"`
	ActorID     string         `json:"actor_id,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Changes     map[string]any `json:"changes,omitempty"`
}

// Sink persists audit events.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

// Record implements Sink.
func (f SinkFunc) Record(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Diff returns the fields whose values differ between before and after,
// as {"old": ..., "new": ...} pairs.
func Diff(before, after map[string]any) map[string]any {
	changes := make(map[string]any)
	for key, newVal := range after {
		oldVal, ok := before[key]
		if !ok || !reflect.DeepEqual(oldVal, newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}
	for key, oldVal := range before {
		if _, ok := after[key]; !ok {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}
	return changes
}
