package pubsub

import (
	"context"
)

// Message is the structure passed between components on the bus.
// Topic is always the concrete channel the message was published to, also
// for deliveries that arrived through a pattern subscription.
type Message struct {
	// Topic identifies the channel the message belongs to (e.g., "chat" or "notifications:42").
	Topic string
	// UserID identifies the user who initiated the message.
	UserID string
	// Payload contains the raw message data, JSON for every topic in this service.
	Payload []byte
	// Metadata can contain arbitrary key-value pairs for context. It is not
	// guaranteed to survive every transport.
	Metadata map[string]string
}

// Handler defines the function signature for processing a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher defines the contract for sending messages to the Pub/Sub system.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber defines the contract for receiving messages from the Pub/Sub system.
type Subscriber interface {
	// Subscribe starts listening to the given topic, processing messages with the handler
	// in a background goroutine. Messages on one subscription are handled in publish order.
	// The subscription ends when ctx is canceled or the subscriber is closed.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	// PSubscribe is Subscribe for every topic matching a glob pattern such as "notifications:*".
	PSubscribe(ctx context.Context, pattern string, handler Handler) error
	Close() error
}

// Backbone is the cross-instance channel every server process publishes to
// and subscribes from. Each process holds exactly one.
type Backbone interface {
	Publisher
	Subscriber
}
