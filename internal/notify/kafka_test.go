package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
	err    error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaDispatch(t *testing.T) {
	w := &fakeWriter{}
	d := &KafkaDispatcher{writer: w}

	err := d.Dispatch(context.Background(), "guardian.evolution", map[string]any{"stage": 3})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "guardian.evolution" {
		t.Errorf("key = %q, want kind", w.msgs[0].Key)
	}

	var env kafkaEnvelope
	if err := json.Unmarshal(w.msgs[0].Value, &env); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if env.Kind != "guardian.evolution" {
		t.Errorf("envelope kind = %q", env.Kind)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
}

func TestKafkaDispatchWriteError(t *testing.T) {
	w := &fakeWriter{err: context.DeadlineExceeded}
	d := &KafkaDispatcher{writer: w}

	if err := d.Dispatch(context.Background(), "k", nil); err == nil {
		t.Fatal("expected write error")
	}
}
