package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"pharmastock/internal/core/apperror"
	"pharmastock/internal/core/id"
)

// AuditKind names an audited event.
type AuditKind string

const (
	AuditMovementCreated           AuditKind = "movement.created"
	AuditMovementBlockedQuarantine AuditKind = "movement.blocked.quarantine"
	AuditMovementBlockedExpired    AuditKind = "movement.blocked.expired"
	AuditMovementBlockedStock      AuditKind = "movement.blocked.insufficient_stock"
	AuditMovementBlockedRule       AuditKind = "movement.blocked.rule"
)

// AuditKindForError returns the audit kind of a blocked movement, or "" when
// err is not a business block worth auditing.
func AuditKindForError(err error) AuditKind {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		return ""
	}
	switch appErr.Code {
	case apperror.CodeBatchQuarantine:
		return AuditMovementBlockedQuarantine
	case apperror.CodeBatchExpired:
		return AuditMovementBlockedExpired
	case apperror.CodeInsufficientStock:
		return AuditMovementBlockedStock
	case apperror.CodeRuleViolation:
		return AuditMovementBlockedRule
	}
	return ""
}

// CompressionAlgo specifies how a payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is one row of sys_audit.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	TenantID          id.ID           `db:"tenant_id"`
	Kind              AuditKind       `db:"kind"`
	EntityType        string          `db:"entity_type"`
	EntityID          *id.ID          `db:"entity_id"`
	UserID            *id.ID          `db:"user_id"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// payloadCodec compresses payloads above a size threshold with zstd.
type payloadCodec struct {
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	threshold int
}

func newPayloadCodec(threshold int) (*payloadCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &payloadCodec{encoder: encoder, decoder: decoder, threshold: threshold}, nil
}

func (c *payloadCodec) pack(e *AuditEntry) {
	e.CompressionAlgo = CompressionNone
	if len(e.Payload) > c.threshold {
		e.PayloadCompressed = c.encoder.EncodeAll(e.Payload, nil)
		e.Payload = nil
		e.CompressionAlgo = CompressionZstd
	}
}

func (c *payloadCodec) unpack(e *AuditEntry) error {
	if e.CompressionAlgo != CompressionZstd || len(e.PayloadCompressed) == 0 {
		return nil
	}
	raw, err := c.decoder.DecodeAll(e.PayloadCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress payload: %w", err)
	}
	e.Payload = raw
	e.PayloadCompressed = nil
	e.CompressionAlgo = CompressionNone
	return nil
}

// AuditLog writes and reads the audit trail.
type AuditLog struct {
	txManager *TxManager
	codec     *payloadCodec
}

// NewAuditLog creates an audit log compressing payloads larger than 10KB.
func NewAuditLog(txManager *TxManager) (*AuditLog, error) {
	codec, err := newPayloadCodec(10 * 1024)
	if err != nil {
		return nil, err
	}
	return &AuditLog{txManager: txManager, codec: codec}, nil
}

// Record writes an entry. Payload may be any JSON-marshalable value.
func (a *AuditLog) Record(ctx context.Context, tenantID id.ID, kind AuditKind, entityType string, entityID, userID *id.ID, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	e := AuditEntry{
		ID:         id.New(),
		TenantID:   tenantID,
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Payload:    raw,
		CreatedAt:  time.Now().UTC(),
	}
	a.codec.pack(&e)

	_, err = a.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_audit (
			id, tenant_id, kind, entity_type, entity_id, user_id,
			payload, payload_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.TenantID, e.Kind, e.EntityType, e.EntityID, e.UserID,
		e.Payload, e.PayloadCompressed, e.CompressionAlgo, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// History returns the newest entries of an entity, decompressed.
func (a *AuditLog) History(ctx context.Context, tenantID id.ID, entityType string, entityID id.ID, limit int) ([]AuditEntry, error) {
	var entries []AuditEntry
	err := a.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		return pgxscan.Select(ctx, a.txManager.GetQuerier(ctx), &entries, `
			SELECT id, tenant_id, kind, entity_type, entity_id, user_id,
			       payload, payload_compressed, compression_algo, created_at
			FROM sys_audit
			WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
			ORDER BY created_at DESC
			LIMIT $4
		`, tenantID, entityType, entityID, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	for i := range entries {
		if err := a.codec.unpack(&entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}
