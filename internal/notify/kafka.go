package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the slice of kafka.Writer the dispatcher needs; tests
// substitute a fake.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher publishes events to a Kafka topic, keyed by event kind so
// consumers see each kind in order.
type KafkaDispatcher struct {
	writer messageWriter
}

// NewKafkaDispatcher creates a dispatcher writing to the given brokers/topic.
func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

type kafkaEnvelope struct {
	Kind    string    `json:"kind"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sent_at"`
}

// Dispatch publishes one event.
func (d *KafkaDispatcher) Dispatch(ctx context.Context, kind string, payload any) error {
	value, err := json.Marshal(kafkaEnvelope{Kind: kind, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	if err := d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(kind),
		Value: value,
	}); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
