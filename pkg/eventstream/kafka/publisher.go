// Package kafka publishes memory events to an Apache Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/eventstream"
)

const (
	// DefaultTopic is the topic memory events land on unless configured
	// otherwise.
	DefaultTopic = "aide.memory.applied"

	// DefaultWriteTimeout bounds a single publish so a slow broker can't
	// stall the apply path that triggered it.
	DefaultWriteTimeout = 5 * time.Second
)

// Config holds the connection settings for the Kafka publisher.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Validate checks that the config is usable.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka publisher requires at least one broker")
	}

	return nil
}

// Publisher writes MemoryAppliedEvents to a Kafka topic. Messages are keyed
// by user ID so all events for one user land on the same partition in order.
type Publisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewPublisher creates a Kafka-backed eventstream publisher.
func NewPublisher(cfg Config, log *zap.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return &Publisher{
		writer: writer,
		log:    log,
	}, nil
}

// PublishApplied serializes the event and writes it to the configured topic.
func (p *Publisher) PublishApplied(ctx context.Context, event *eventstream.MemoryAppliedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling memory event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Time:  event.EmittedAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing memory event to kafka: %w", err)
	}

	p.log.Debug("published memory event",
		zap.String("event_id", event.EventID),
		zap.String("user_id", event.UserID),
		zap.String("memory_type", string(event.MemoryType)),
	)

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
