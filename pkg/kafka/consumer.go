package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// EventHandler processes a single consumed event. Returning an error logs the
// failure but does not stop consumption.
type EventHandler func(ctx context.Context, event Event) error

// Consumer reads events from a Kafka topic within a consumer group.
type Consumer struct {
	reader  *kafka.Reader
	handler EventHandler
	logger  *slog.Logger
}

// NewConsumer creates a Kafka consumer for the given topic and group.
func NewConsumer(brokers []string, topic, groupID string, handler EventHandler, l *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
	})

	return &Consumer{reader: reader, handler: handler, logger: l}
}

// Run consumes messages until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.ErrorContext(ctx, "failed to decode event",
				slog.String("error", err.Error()),
				slog.Int64("offset", msg.Offset),
			)
			continue
		}

		if err := c.handler(ctx, event); err != nil {
			c.logger.ErrorContext(ctx, "failed to handle event",
				slog.String("error", err.Error()),
				slog.String("event_id", event.ID),
				slog.String("event_type", event.Type),
			)
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
