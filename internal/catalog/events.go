package catalog

import (
	"context"

	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/pubsub"
	"github.com/zjrosen/catalog/internal/storage"
)

// Catalog event types.
const (
	EventRegistered   pubsub.EventType = "registered"
	EventUnregistered pubsub.EventType = "unregistered"
	EventRepaired     pubsub.EventType = pubsub.RepairedEvent
	EventAssigned     pubsub.EventType = "assigned"
	EventReloaded     pubsub.EventType = "reloaded"
)

// Event is the payload of a catalog notification. Only the fields relevant
// to the event type are set.
type Event struct {
	ID       identity.ID
	Location storage.Location

	// Previous is the replaced Identifier of a repair.
	Previous identity.ID
	// Owner is the location that kept Previous.
	Owner storage.Location

	Collections int
	Records     int
}

// Subscribe streams catalog events until ctx is cancelled.
func (c *Catalog) Subscribe(ctx context.Context) <-chan pubsub.Event[Event] {
	return c.broker.Subscribe(ctx)
}

// SubscribeTo streams only the given event types.
func (c *Catalog) SubscribeTo(ctx context.Context, types ...pubsub.EventType) <-chan pubsub.Event[Event] {
	return c.broker.SubscribeTypes(ctx, types...)
}

// Listen returns a pull-style listener for catalog events.
func (c *Catalog) Listen(ctx context.Context) *pubsub.Listener[Event] {
	return pubsub.NewListener(ctx, c.broker)
}

func (c *Catalog) publish(t pubsub.EventType, e Event) {
	c.broker.Publish(t, e)
}
