// Package sink delivers resolved outbox events to a message broker.
package sink

import "context"

// Message is a broker-neutral event ready for delivery.
type Message struct {
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Sink publishes messages and reports broker readiness.
type Sink interface {
	Publish(ctx context.Context, msg Message) error
	Ping(ctx context.Context) error
	Close() error
}
