package sink

import (
	"context"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type pubSubClient interface {
	Ping(ctx context.Context) error
	Publisher(name string) *gcppubsub.Publisher
	Close() error
}

// PubSubSink publishes to Google Cloud Pub/Sub topics, caching one
// publisher per topic.
type PubSubSink struct {
	client     pubSubClient
	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

// NewPubSubSink wraps a Pub/Sub client.
func NewPubSubSink(client pubSubClient) (*PubSubSink, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client required")
	}
	return &PubSubSink{client: client, publishers: map[string]*gcppubsub.Publisher{}}, nil
}

func (s *PubSubSink) publisher(topic string) *gcppubsub.Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.publishers[topic]; ok {
		return p
	}
	p := s.client.Publisher(topic)
	if p != nil {
		s.publishers[topic] = p
	}
	return p
}

func (s *PubSubSink) Publish(ctx context.Context, msg Message) error {
	p := s.publisher(msg.Topic)
	if p == nil {
		return fmt.Errorf("publisher not configured for topic %s", msg.Topic)
	}
	result := p.Publish(ctx, &gcppubsub.Message{
		Data:       msg.Data,
		Attributes: msg.Attributes,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	return nil
}

func (s *PubSubSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close flushes cached publishers and closes the client.
func (s *PubSubSink) Close() error {
	s.mu.Lock()
	for topic, p := range s.publishers {
		p.Stop()
		delete(s.publishers, topic)
	}
	s.mu.Unlock()
	return s.client.Close()
}
