// Package messaging delivers outbox events to Kafka.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"pharmastock/internal/infrastructure/storage/postgres"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// WriterConfig configures the Kafka writer.
type WriterConfig struct {
	Brokers []string
	Topic   string
}

// NewWriter creates a synchronous Kafka writer that waits for all in-sync replicas.
func NewWriter(cfg WriterConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
}

// Publisher sends outbox messages to Kafka. It implements postgres.OutboxHandler.
type Publisher struct {
	writer     MessageWriter
	propagator propagation.TextMapPropagator
}

var _ postgres.OutboxHandler = (*Publisher)(nil)

// NewPublisher creates a publisher over w.
func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{writer: w, propagator: otel.GetTextMapPropagator()}
}

// Handle writes one message. The key is the aggregate id so events of one
// balance stay on one partition in commit order.
func (p *Publisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	headers := headerCarrier{
		{Key: "event_type", Value: []byte(msg.EventType)},
		{Key: "aggregate_type", Value: []byte(msg.AggregateType)},
		{Key: "tenant_id", Value: []byte(msg.TenantID.String())},
		{Key: "message_id", Value: []byte(msg.ID.String())},
	}
	p.propagator.Inject(ctx, &headers)

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.AggregateID.String()),
		Value:   msg.Payload,
		Headers: headers,
		Time:    msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("write %s to kafka: %w", msg.EventType, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// headerCarrier adapts Kafka headers to otel's TextMapCarrier.
type headerCarrier []kafka.Header

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(*c))
	for i, h := range *c {
		keys[i] = h.Key
	}
	return keys
}
