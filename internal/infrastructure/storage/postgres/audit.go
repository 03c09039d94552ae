package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/audit"
)

const auditEntityType = "inventory_transaction"

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is a row of sys_audit.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	EntityNumber      string          `db:"entity_number"`
	Action            string          `db:"action"`
	UserID            string          `db:"user_id"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditService stores audit events in sys_audit. Change sets above the
// threshold are stored zstd-compressed.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ audit.Sink = (*AuditService)(nil)

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Record implements audit.Sink.
func (s *AuditService) Record(ctx context.Context, e audit.Event) error {
	entry, err := s.encode(e)
	if err != nil {
		return err
	}

	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_audit (
			id, entity_type, entity_id, entity_number, action, user_id,
			changes, changes_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID, entry.EntityType, entry.EntityID, entry.EntityNumber, entry.Action, entry.UserID,
		entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", MapError(err))
	}
	return nil
}

func (s *AuditService) encode(e audit.Event) (AuditEntry, error) {
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return AuditEntry{}, fmt.Errorf("marshal changes: %w", err)
	}

	entry := AuditEntry{
		ID:              e.ID,
		EntityType:      auditEntityType,
		EntityID:        e.EntryID,
		EntityNumber:    e.EntryNumber,
		Action:          string(e.Action),
		UserID:          e.ActorID,
		Changes:         changes,
		CompressionAlgo: CompressionNone,
		CreatedAt:       e.OccurredAt,
	}
	if len(changes) > s.compressThreshold {
		entry.ChangesCompressed = s.encoder.EncodeAll(changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}
	return entry, nil
}

// History returns the events of one entry, newest first.
func (s *AuditService) History(ctx context.Context, entryID id.ID, limit int) ([]audit.Event, error) {
	var rows []AuditEntry
	err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &rows, `
		SELECT id, entity_type, entity_id, entity_number, action, user_id,
		       changes, changes_compressed, compression_algo, created_at
		FROM sys_audit
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, auditEntityType, entryID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	events := make([]audit.Event, 0, len(rows))
	for _, row := range rows {
		e, err := s.decode(row)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *AuditService) decode(row AuditEntry) (audit.Event, error) {
	raw := []byte(row.Changes)
	if row.CompressionAlgo == CompressionZstd && len(row.ChangesCompressed) > 0 {
		decompressed, err := s.decoder.DecodeAll(row.ChangesCompressed, nil)
		if err != nil {
			return audit.Event{}, fmt.Errorf("decompress changes: %w", err)
		}
		raw = decompressed
	}

	var changes map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &changes); err != nil {
			return audit.Event{}, fmt.Errorf("unmarshal changes: %w", err)
		}
	}

	return audit.Event{
		ID:          row.ID,
		EntryID:     row.EntityID,
		EntryNumber: row.EntityNumber,
		Action:      audit.Action(row.Action),
		ActorID:     row.UserID,
		OccurredAt:  row.CreatedAt,
		Changes:     changes,
	}, nil
}
