package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ramiqadoumi/planflow/pkg/telemetry"
)

// Message is the part of a Kafka record the runner and gateway look at.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   []kafka.Header
	Time      time.Time
}

// HandlerFunc handles one message. A nil return commits its offset; an error
// leaves it uncommitted so the group re-delivers it after a rebalance or restart.
type HandlerFunc func(ctx context.Context, msg Message) error

// Consumer reads messages from a Kafka topic.
type Consumer interface {
	Subscribe(ctx context.Context, handler HandlerFunc) error
	Close() error
}

type consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// ConsumerOption adjusts the reader configuration.
type ConsumerOption func(*kafka.ReaderConfig)

// FromLatest starts a new consumer group at the end of the topic instead of
// replaying it. Used by live-update listeners that only care about new events.
func FromLatest() ConsumerOption {
	return func(c *kafka.ReaderConfig) { c.StartOffset = kafka.LastOffset }
}

// WithMaxWait bounds how long a fetch waits for new data.
func WithMaxWait(d time.Duration) ConsumerOption {
	return func(c *kafka.ReaderConfig) { c.MaxWait = d }
}

// NewConsumer joins groupID on topic. Offsets are committed explicitly.
func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger, opts ...ConsumerOption) Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &consumer{reader: kafka.NewReader(cfg), logger: logger}
}

// Subscribe blocks until ctx is cancelled (returning nil) or a fetch fails.
// Delivery is at-least-once.
func (c *consumer) Subscribe(ctx context.Context, handler HandlerFunc) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch from %s: %w", c.reader.Config().Topic, err)
		}

		if err := handler(withTrace(ctx, m.Headers), messageFrom(m)); err != nil {
			telemetry.KafkaMessagesConsumed.WithLabelValues(m.Topic, "error").Inc()
			c.logger.Error("message handler failed, offset not committed", logFields(m, err)...)
			continue
		}
		telemetry.KafkaMessagesConsumed.WithLabelValues(m.Topic, "ok").Inc()

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error("commit offset", logFields(m, err)...)
		}
	}
}

func (c *consumer) Close() error {
	return c.reader.Close()
}

func messageFrom(m kafka.Message) Message {
	return Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Headers:   m.Headers,
		Time:      m.Time,
	}
}

func logFields(m kafka.Message, err error) []any {
	return []any{
		slog.String("topic", m.Topic),
		slog.Int("partition", m.Partition),
		slog.Int64("offset", m.Offset),
		slog.String("error", err.Error()),
	}
}
