package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"pharmastock/internal/core/id"
	"pharmastock/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// maxOutboxRetries is the retry count after which a message is marked failed.
const maxOutboxRetries = 5

// OutboxMessage is a row of sys_outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	TenantID      id.ID        `db:"tenant_id"`
	AggregateType string       `db:"aggregate_type"`
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

// DomainEvent is an event to be written to the outbox.
type DomainEvent struct {
	TenantID      id.ID
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// OutboxPublisher writes events to sys_outbox. Inside a transaction the event
// commits or rolls back with it; outside it is written on its own.
type OutboxPublisher struct {
	txManager *TxManager
}

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager}
}

// Publish writes one event.
func (p *OutboxPublisher) Publish(ctx context.Context, event DomainEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = p.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_outbox (id, tenant_id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id.New(), event.TenantID, event.AggregateType, event.AggregateID, event.EventType, payload, OutboxStatusPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// OutboxHandler delivers one outbox message to a broker.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxRelay moves pending messages to an OutboxHandler. Several relays may run
// at once; SKIP LOCKED keeps them on disjoint messages.
type OutboxRelay struct {
	txManager *TxManager
	batchSize int
	handler   OutboxHandler
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(txManager *TxManager, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{txManager: txManager, batchSize: batchSize, handler: handler}
}

// ProcessBatch delivers up to batchSize due messages and returns how many
// were published.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.txManager.GetQuerier(ctx)

		var messages []*OutboxMessage
		err := pgxscan.Select(ctx, q, &messages, `
			SELECT id, tenant_id, aggregate_type, aggregate_id, event_type, payload, status,
			       retry_count, last_error, next_retry_at, created_at, published_at
			FROM sys_outbox
			WHERE status = $1
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, OutboxStatusPending, r.batchSize)
		if err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		for _, msg := range messages {
			if err := r.processMessage(ctx, q, msg); err != nil {
				logger.Warn(ctx, "outbox delivery failed",
					"message_id", msg.ID,
					"event_type", msg.EventType,
					"retry_count", msg.RetryCount+1,
					"error", err,
				)
				continue
			}
			processed++
		}
		return nil
	})
	return processed, err
}

func (r *OutboxRelay) processMessage(ctx context.Context, q Querier, msg *OutboxMessage) error {
	if err := r.handler.Handle(ctx, msg); err != nil {
		nextRetry := time.Now().UTC().Add(time.Duration(msg.RetryCount+1) * time.Minute)
		_, updateErr := q.Exec(ctx, `
			UPDATE sys_outbox
			SET retry_count = retry_count + 1,
			    last_error = $1,
			    next_retry_at = $2,
			    status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE status END
			WHERE id = $5
		`, err.Error(), nextRetry, maxOutboxRetries, OutboxStatusFailed, msg.ID)
		if updateErr != nil {
			return fmt.Errorf("update failed message: %w", updateErr)
		}
		return err
	}

	_, err := q.Exec(ctx, `
		UPDATE sys_outbox SET status = $1, published_at = $2 WHERE id = $3
	`, OutboxStatusPublished, time.Now().UTC(), msg.ID)
	return err
}

// MoveToDLQ moves failed messages to sys_outbox_dlq.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1
			RETURNING id, tenant_id, aggregate_type, aggregate_id, event_type, payload, retry_count, last_error, created_at
		)
		INSERT INTO sys_outbox_dlq (id, tenant_id, aggregate_type, aggregate_id, event_type, payload, retry_count, failure_reason, created_at, failed_at)
		SELECT id, tenant_id, aggregate_type, aggregate_id, event_type, payload, retry_count, last_error, created_at, NOW() FROM moved
	`, OutboxStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgePublished deletes published messages older than retention.
func (r *OutboxRelay) PurgePublished(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_outbox WHERE status = $1 AND published_at < $2
	`, OutboxStatusPublished, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge published outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}
