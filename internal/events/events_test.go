package events

import (
	"context"
	"errors"
	"testing"
)

func TestNoopPublisher(t *testing.T) {
	if err := (NoopPublisher{}).Publish(context.Background(), Event{}); err != nil {
		t.Errorf("NoopPublisher should never fail: %v", err)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	_ = r.Publish(ctx, Event{Type: TypeStreamStarted, StreamID: "1"})
	_ = r.Publish(ctx, Event{Type: TypeStreamEnded, StreamID: "1"})

	if err := r.Publish(ctx, Event{StreamID: "1"}); !errors.Is(err, ErrEventTypeRequired) {
		t.Errorf("expected ErrEventTypeRequired, got %v", err)
	}
	if len(r.Events()) != 2 {
		t.Fatalf("events = %d", len(r.Events()))
	}
	ended := r.OfType(TypeStreamEnded)
	if len(ended) != 1 || ended[0].StreamID != "1" {
		t.Errorf("OfType = %v", ended)
	}
}

func TestNewRedisPublisher_requires_addr(t *testing.T) {
	if _, err := NewRedisPublisher(context.Background(), RedisConfig{}); err == nil {
		t.Error("expected error for empty addr")
	}
}
