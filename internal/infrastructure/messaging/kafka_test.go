package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmastock/internal/core/id"
	"pharmastock/internal/infrastructure/storage/postgres"
)

type fakeWriter struct {
	written []kafka.Message
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestHandleWritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w)

	msg := &postgres.OutboxMessage{
		ID:            id.New(),
		TenantID:      id.New(),
		AggregateType: "inventory_balance",
		AggregateID:   id.New(),
		EventType:     "stock.balance_changed",
		Payload:       []byte(`{"quantity":"5"}`),
		CreatedAt:     time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Handle(context.Background(), msg))

	require.Len(t, w.written, 1)
	got := w.written[0]
	assert.Equal(t, msg.AggregateID.String(), string(got.Key))
	assert.Equal(t, msg.Payload, got.Value)
	assert.Equal(t, "stock.balance_changed", header(got, "event_type"))
	assert.Equal(t, msg.TenantID.String(), header(got, "tenant_id"))
	assert.Equal(t, msg.ID.String(), header(got, "message_id"))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestHandleWrapsWriterError(t *testing.T) {
	boom := errors.New("broker unavailable")
	p := NewPublisher(&fakeWriter{err: boom})

	err := p.Handle(context.Background(), &postgres.OutboxMessage{EventType: "stock.balance_changed"})
	assert.ErrorIs(t, err, boom)
}

func TestHeaderCarrierOverwrites(t *testing.T) {
	var c headerCarrier
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")

	assert.Equal(t, "b", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
