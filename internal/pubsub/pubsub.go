// Package pubsub abstracts the event transport the engine rides on. The
// engine only ever sees the Publisher/Subscriber contracts; the bundled
// in-memory bus stands in for the production broker, which is deployed as
// an external collaborator.
package pubsub

import (
	"context"
)

// Topic names carried over the bus.
const (
	TopicPositionUpdates     = "position-updates"
	TopicLoadEvents          = "load-events"
	TopicOptimizationResults = "optimization-results"
)

// Message is one raw topic record. Key carries the partition/ordering hint
// (driver id, load id, job id); Value is the JSON payload.
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// Handler consumes one message. Errors are logged by the bus; the
// in-memory transport does not redeliver.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Subscriber attaches a handler to a topic. The subscription lives until
// ctx is cancelled or the bus closes.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, h Handler) error
}

// Bus is a bidirectional transport.
type Bus interface {
	Publisher
	Subscriber
}
