package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/audit"
)

func TestAuditService_EncodeDecode(t *testing.T) {
	svc, err := NewAuditService(nil)
	require.NoError(t, err)

	event := audit.Event{
		EntryID:     id.New(),
		EntryNumber: "CO-2026-00001",
		Action:      audit.ActionApproved,
		ActorID:     "manager",
		OccurredAt:  time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		Changes:     map[string]any{"approval_status": "approved"},
	}

	entry, err := svc.encode(event)
	require.NoError(t, err)
	assert.False(t, id.IsNil(entry.ID))
	assert.Equal(t, CompressionNone, entry.CompressionAlgo)

	back, err := svc.decode(entry)
	require.NoError(t, err)
	assert.Equal(t, event.Changes, back.Changes)
	assert.Equal(t, event.EntryNumber, back.EntryNumber)
}

func TestAuditService_CompressesLargeChanges(t *testing.T) {
	svc, err := NewAuditService(nil)
	require.NoError(t, err)

	notes := strings.Repeat("water damage on pallet ", 1000)
	entry, err := svc.encode(audit.Event{EntryID: id.New(), Action: audit.ActionRejected, Changes: map[string]any{"notes": notes}})
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, entry.CompressionAlgo)
	assert.Nil(t, entry.Changes)
	assert.Less(t, len(entry.ChangesCompressed), len(notes))

	back, err := svc.decode(entry)
	require.NoError(t, err)
	assert.Equal(t, notes, back.Changes["notes"])
}
