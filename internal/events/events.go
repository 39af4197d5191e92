// Package events publishes stream lifecycle events to interested consumers.
package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Event types published by the stream service.
const (
	TypeStreamStarted = "stream.started"
	TypeStreamStopped = "stream.stopped"
	TypeStreamEnded   = "stream.ended"
	TypeStreamFailed  = "stream.failed"
)

// ErrEventTypeRequired is returned when publishing an event without a type.
var ErrEventTypeRequired = errors.New("event type is required")

// Event is one lifecycle notification.
type Event struct {
	Type        string    `json:"type"`
	StreamID    string    `json:"stream_id"`
	Resolutions []string  `json:"resolutions,omitempty"`
	Error       string    `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher discards every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	if event.Type == "" {
		return ErrEventTypeRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of every recorded event in publish order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type typ.
func (r *Recorder) OfType(typ string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
