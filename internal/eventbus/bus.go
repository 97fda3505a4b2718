// Package eventbus is a generic, subject-based publish/subscribe
// abstraction used for the usage-stat side channel: it is genuinely
// multi-producer/multi-consumer (every agent process contributes usage
// deltas, and both the store's accumulator and any external collector want
// to see them), unlike the Supervisor's single-reader output channel.
package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one message published to a subject.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewEvent mints an Event with a fresh id and the current UTC timestamp.
func NewEvent(eventType, source string, data map[string]any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Handler processes one delivered Event.
type Handler func(ctx context.Context, event *Event) error

// Subscription is a handle to an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// Bus is implemented by both the in-memory and NATS-backed event buses so
// the usage collector can be pointed at either by configuration alone.
type Bus interface {
	Publish(ctx context.Context, subject string, event *Event) error
	Subscribe(subject string, handler Handler) (Subscription, error)
	QueueSubscribe(subject, queue string, handler Handler) (Subscription, error)
	Close()
	IsConnected() bool
}

// Subjects used by the usage-stat side channel.
const (
	SubjectUsageRecorded = "usage.recorded"
	SubjectUsageUpdated  = "usage.updated"
)
