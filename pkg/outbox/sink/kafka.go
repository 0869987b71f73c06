package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes to Kafka. Topics are set per message so one writer
// serves every event topic.
type KafkaSink struct {
	brokers []string
	writer  kafkaWriter
	dial    func(ctx context.Context, network, address string) (*kafka.Conn, error)
}

// NewKafkaSink builds a writer keyed by aggregate id so events for one
// order stay on one partition.
func NewKafkaSink(brokers []string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	return &KafkaSink{
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		dial: kafka.DialContext,
	}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, msg Message) error {
	headers := make([]kafka.Header, 0, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	err := s.writer.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: headers,
		Time:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	return nil
}

// Ping dials the first reachable broker.
func (s *KafkaSink) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range s.brokers {
		conn, err := s.dial(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("kafka unreachable: %w", lastErr)
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
