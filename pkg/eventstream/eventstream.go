package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event is a lifecycle event published for operational visibility: batch
// opened/closed, worker joined/left, rebalance performed, session
// invalidated. It is not part of the crawl correctness path — losing one
// never blocks a role's tick loop.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Role      string            `json:"role"`
	WorkerID  string            `json:"workerId"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// KafkaConfig configures the lifecycle event stream. When Enabled is false,
// NewPublisher returns a no-op publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// Publisher emits lifecycle events. It never blocks the caller on a slow or
// unreachable broker beyond the write timeout.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// KafkaPublisher publishes lifecycle events to a single Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewPublisher builds a Publisher for cfg. When cfg.Enabled is false it
// returns a noopPublisher so callers can publish unconditionally.
func NewPublisher(cfg KafkaConfig) Publisher {
	if !cfg.Enabled {
		return noopPublisher{}
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    50,
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,
	})
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.WorkerID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "role", Value: []byte(event.Role)},
		},
	}

	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, event Event) error { return nil }
func (noopPublisher) Close() error                                   { return nil }

// Lifecycle event types emitted by the Manager and General roles.
const (
	BatchOpened        = "batch.opened"
	BatchClosed        = "batch.closed"
	WorkerJoined       = "worker.joined"
	WorkerLeft         = "worker.left"
	RebalancePerformed = "rebalance.performed"
	SessionInvalidated = "session.invalidated"
)

// NewEvent builds an Event for the given role/worker, ready for Publish.
func NewEvent(eventType, role, workerID string, payload map[string]string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Role:      role,
		WorkerID:  workerID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
