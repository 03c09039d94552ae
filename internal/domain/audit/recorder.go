package audit

import (
	"context"
	"sync"
	"time"

	"stockledger/internal/core/id"
	"stockledger/pkg/logger"
)

// Recorder forwards events to a Sink, logging and swallowing failures.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

// NewRecorder creates a recorder. A nil sink discards events.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, now: time.Now}
}

// Record sends each event to the sink. Call it only after the producing
// transaction has committed.
func (r *Recorder) Record(ctx context.Context, events ...Event) {
	if r == nil || r.sink == nil {
		return
	}
	for _, e := range events {
		if id.IsNil(e.ID) {
			e.ID = id.New()
		}
		if e.OccurredAt.IsZero() {
			e.OccurredAt = r.now().UTC()
		}
		if err := r.sink.Record(ctx, e); err != nil {
			logger.Warn(ctx, "audit record failed",
				"entry_id", e.EntryID,
				"action", e.Action,
				"error", err,
			)
		}
	}
}

// LogSink writes events to the structured log.
type LogSink struct{}

// Record implements Sink.
func (LogSink) Record(ctx context.Context, e Event) error {
	logger.Info(ctx, "audit",
		"entry_id", e.EntryID,
		"entry_number", e.EntryNumber,
		"entry_type", e.EntryType,
		"action", e.Action,
		"actor_id", e.ActorID,
		"changes", e.Changes,
	)
	return nil
}

// MemorySink keeps events in memory. Err, when set, is returned by every Record call.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

// Record implements Sink.
func (s *MemorySink) Record(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// ForEntry returns the actions recorded for one entry, in order.
func (s *MemorySink) ForEntry(entryID id.ID) []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Action
	for _, e := range s.events {
		if e.EntryID == entryID {
			out = append(out, e.Action)
		}
	}
	return out
}
