package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
)

const idempotencyTable = "sys_idempotency"

// IdempotencyStatus is the lifecycle of a key: pending until the handler
// finishes, then success or failed with the response stored for replay.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// IdempotencyRecord is a row of sys_idempotency.
type IdempotencyRecord struct {
	Key         string            `db:"idempotency_key"`
	UserID      string            `db:"user_id"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"`
	Response    []byte            `db:"response"`
	StatusCode  int               `db:"response_status"`
	ContentType string            `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
	Inserted    bool              `db:"inserted"`
}

// sameRequest reports whether the record was created by an identical request.
func (r *IdempotencyRecord) sameRequest(userID, operation, requestHash string) bool {
	return r.UserID == userID && r.Operation == operation && r.RequestHash == requestHash
}

func (r *IdempotencyRecord) replay() *IdempotencyReplay {
	out := &IdempotencyReplay{StatusCode: r.StatusCode, ContentType: r.ContentType, Body: r.Response}
	if out.StatusCode == 0 {
		out.StatusCode = http.StatusOK
	}
	if out.ContentType == "" {
		out.ContentType = "application/json"
	}
	return out
}

// IdempotencyReplay is a stored HTTP response.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyStore keeps X-Idempotency-Key records so that a retried
// submission returns the first outcome instead of writing a second entry.
type IdempotencyStore struct {
	txManager  *TxManager
	builder    squirrel.StatementBuilderType
	ttl        time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

// NewIdempotencyStore creates a store whose keys live for ttl.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		txManager:  txManager,
		builder:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		ttl:        ttl,
		staleAfter: time.Minute,
		now:        time.Now,
	}
}

// AcquireKey claims key for a request.
// It returns (nil, nil) when the caller owns the key and must run the
// handler, a replay when the key already finished, and an error when the key
// is in flight or was used for a different request.
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*IdempotencyReplay, error) {
	now := s.now().UTC()

	// xmax is 0 only for a row this statement inserted.
	var rec IdempotencyRecord
	err := pgxscan.Get(ctx, s.txManager.GetQuerier(ctx), &rec, `
		INSERT INTO sys_idempotency (idempotency_key, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (idempotency_key) DO UPDATE SET expires_at = GREATEST(sys_idempotency.expires_at, EXCLUDED.expires_at)
		RETURNING idempotency_key, user_id, operation, status, request_hash,
			response, response_status, response_content_type,
			created_at, updated_at, expires_at, (xmax = 0) AS inserted
	`, key, userID, operation, IdempotencyStatusPending, requestHash, now, now.Add(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", MapError(err))
	}

	if rec.Inserted {
		return nil, nil
	}
	if !rec.sameRequest(userID, operation, requestHash) {
		return nil, apperror.NewIdempotencyMismatch(key).WithDetail("operation", rec.Operation)
	}

	switch rec.Status {
	case IdempotencyStatusSuccess, IdempotencyStatusFailed:
		return rec.replay(), nil
	case IdempotencyStatusPending:
		if now.Sub(rec.UpdatedAt) <= s.staleAfter {
			return nil, apperror.NewIdempotencyConflict(key)
		}
		return s.reclaim(ctx, key, rec.UpdatedAt, now)
	}
	return nil, nil
}

// reclaim takes over a pending key whose owner stopped touching it.
// Only one of several racing callers moves updated_at and wins.
func (s *IdempotencyStore) reclaim(ctx context.Context, key string, seen, now time.Time) (*IdempotencyReplay, error) {
	sql, args, err := s.builder.Update(idempotencyTable).
		Set("updated_at", now).
		Where(squirrel.Eq{
			"idempotency_key": key,
			"status":          IdempotencyStatusPending,
			"updated_at":      seen,
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build reclaim query: %w", err)
	}

	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("reclaim idempotency key: %w", MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	return nil, nil
}

// CompleteKey stores a successful response.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	body, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return s.finish(ctx, key, IdempotencyStatusSuccess, statusCode, contentType, body)
}

// FailKey stores an error response. A body that cannot be encoded is
// replaced so the key still leaves the pending state.
func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	body, err := json.Marshal(response)
	if err != nil {
		body, _ = json.Marshal(map[string]string{"code": string(apperror.CodeInternal), "message": "response not encodable"})
	}
	return s.finish(ctx, key, IdempotencyStatusFailed, statusCode, contentType, body)
}

func (s *IdempotencyStore) finish(ctx context.Context, key string, status IdempotencyStatus, statusCode int, contentType string, body []byte) error {
	sql, args, err := s.builder.Update(idempotencyTable).
		SetMap(map[string]any{
			"status":                status,
			"response":              body,
			"response_status":       statusCode,
			"response_content_type": contentType,
			"updated_at":            s.now().UTC(),
		}).
		Where(squirrel.Eq{"idempotency_key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build finish query: %w", err)
	}

	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("finish idempotency key %s: %w", key, MapError(err))
	}
	return nil
}

// CleanupExpired deletes records past their expiry and returns how many.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	sql, args, err := s.builder.Delete(idempotencyTable).
		Where(squirrel.Lt{"expires_at": s.now().UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup query: %w", err)
	}

	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", MapError(err))
	}
	return tag.RowsAffected(), nil
}
