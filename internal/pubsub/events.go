// Package pubsub fans typed events out to in-process subscribers.
package pubsub

import (
	"context"
	"time"
)

// EventType names what happened.
type EventType string

const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"
	// RepairedEvent marks a self-healing fix such as a regenerated identifier.
	RepairedEvent EventType = "repaired"
)

// Event is one delivery. Seq increases by one per Publish call on a broker,
// so a subscriber can tell when it missed deliveries.
type Event[T any] struct {
	Seq       uint64
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber hands out subscription channels.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
	SubscribeTypes(ctx context.Context, types ...EventType) <-chan Event[T]
}

// Publisher accepts events.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T) int
}
