package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
)

func TestRecorder_FillsIDAndTime(t *testing.T) {
	sink := &MemorySink{}
	r := NewRecorder(sink)

	entryID := id.New()
	r.Record(context.Background(), Event{EntryID: entryID, Action: ActionSubmitted}, Event{EntryID: entryID, Action: ActionApproved})

	events := sink.Events()
	require.Len(t, events, 2)
	assert.False(t, id.IsNil(events[0].ID))
	assert.False(t, events[0].OccurredAt.IsZero())
	assert.Equal(t, []Action{ActionSubmitted, ActionApproved}, sink.ForEntry(entryID))
}

func TestRecorder_SwallowsSinkErrors(t *testing.T) {
	calls := 0
	r := NewRecorder(SinkFunc(func(context.Context, Event) error {
		calls++
		return errors.New("sink down")
	}))

	assert.NotPanics(t, func() {
		r.Record(context.Background(), Event{Action: ActionRejected}, Event{Action: ActionDelivered})
	})
	assert.Equal(t, 2, calls)
}

func TestRecorder_NilSink(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() { r.Record(context.Background(), Event{}) })
	assert.NotPanics(t, func() { NewRecorder(nil).Record(context.Background(), Event{}) })
}

func TestDiff(t *testing.T) {
	changes := Diff(
		map[string]any{"approval_status": "pending", "notes": "x"},
		map[string]any{"approval_status": "approved", "decided_by": "u1"},
	)

	assert.Equal(t, map[string]any{"old": "pending", "new": "approved"}, changes["approval_status"])
	assert.Equal(t, map[string]any{"old": nil, "new": "u1"}, changes["decided_by"])
	assert.Equal(t, map[string]any{"old": "x", "new": nil}, changes["notes"])
}
