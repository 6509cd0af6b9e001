package postgres

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pharmastock/internal/core/apperror"
	"pharmastock/internal/core/id"
)

// IdempotencyStatus is the state of a keyed request.
type IdempotencyStatus string

const (
	IdempotencyPending IdempotencyStatus = "pending"
	IdempotencyDone    IdempotencyStatus = "done"
)

// staleAfter is how long a pending key may sit before another request may take it over.
const staleAfter = time.Minute

// IdempotencyRecord is a row of sys_idempotency.
type IdempotencyRecord struct {
	TenantID    id.ID             `db:"tenant_id"`
	Key         string            `db:"idempotency_key"`
	UserID      id.ID             `db:"user_id"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"`
	Response    []byte            `db:"response"`
	StatusCode  *int              `db:"response_status"`
	ContentType *string           `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyReplay is a stored HTTP response.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyKey identifies one keyed request.
type IdempotencyKey struct {
	TenantID    id.ID
	UserID      id.ID
	Key         string
	Operation   string
	RequestHash string
}

// IdempotencyStore keeps idempotency keys so retried movement requests are
// answered from the stored response instead of being executed twice.
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
	now       func() time.Time
}

// NewIdempotencyStore creates a store whose keys live for ttl.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{txManager: txManager, ttl: ttl, now: time.Now}
}

// Acquire claims k. It returns (nil, nil) when the caller owns the key and
// must run the request, or the stored response when it already completed.
func (s *IdempotencyStore) Acquire(ctx context.Context, k IdempotencyKey) (*IdempotencyReplay, error) {
	now := s.now().UTC()
	q := s.txManager.GetQuerier(ctx)

	var rec IdempotencyRecord
	var inserted bool
	err := q.QueryRow(ctx, `
		INSERT INTO sys_idempotency (tenant_id, idempotency_key, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8)
		ON CONFLICT (tenant_id, idempotency_key) DO UPDATE SET
			updated_at = sys_idempotency.updated_at
		RETURNING user_id, operation, status, request_hash, response, response_status,
		          response_content_type, updated_at, (xmax = 0) AS inserted
	`, k.TenantID, k.Key, k.UserID, k.Operation, IdempotencyPending, k.RequestHash, now, now.Add(s.ttl)).Scan(
		&rec.UserID, &rec.Operation, &rec.Status, &rec.RequestHash, &rec.Response,
		&rec.StatusCode, &rec.ContentType, &rec.UpdatedAt, &inserted,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if inserted {
		return nil, nil
	}

	if rec.UserID != k.UserID || rec.Operation != k.Operation || rec.RequestHash != k.RequestHash {
		return nil, apperror.NewIdempotencyMismatch(k.Key).
			WithDetail("operation", rec.Operation)
	}

	switch rec.Status {
	case IdempotencyDone:
		return replayOf(rec), nil
	case IdempotencyPending:
		if now.Sub(rec.UpdatedAt) <= staleAfter {
			return nil, apperror.NewIdempotencyConflict(k.Key)
		}
		tag, err := q.Exec(ctx, `
			UPDATE sys_idempotency SET updated_at = $1
			WHERE tenant_id = $2 AND idempotency_key = $3 AND status = $4 AND updated_at = $5
		`, now, k.TenantID, k.Key, IdempotencyPending, rec.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("reclaim stale idempotency key: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, apperror.NewIdempotencyConflict(k.Key)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unknown idempotency status %q", rec.Status)
}

// Complete stores the response of a request that owns k.
func (s *IdempotencyStore) Complete(ctx context.Context, k IdempotencyKey, resp IdempotencyReplay) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1, response = $2, response_status = $3, response_content_type = $4, updated_at = $5
		WHERE tenant_id = $6 AND idempotency_key = $7
	`, IdempotencyDone, resp.Body, resp.StatusCode, resp.ContentType, s.now().UTC(), k.TenantID, k.Key)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release drops a pending key so the request can be retried, used when the
// outcome should not be replayed (server errors).
func (s *IdempotencyStore) Release(ctx context.Context, k IdempotencyKey) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_idempotency WHERE tenant_id = $1 AND idempotency_key = $2 AND status = $3
	`, k.TenantID, k.Key, IdempotencyPending)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// CleanupExpired removes expired keys.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM sys_idempotency WHERE expires_at < $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func replayOf(rec IdempotencyRecord) *IdempotencyReplay {
	r := &IdempotencyReplay{StatusCode: http.StatusOK, ContentType: "application/json", Body: rec.Response}
	if rec.StatusCode != nil && *rec.StatusCode != 0 {
		r.StatusCode = *rec.StatusCode
	}
	if rec.ContentType != nil && *rec.ContentType != "" {
		r.ContentType = *rec.ContentType
	}
	return r
}
