package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-rental/internal/logger"
	"ms-rental/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer relays order events from the topic to a local handler. Each service
// instance uses its own group so every instance sees every event.
type Consumer struct {
	Reader MessageReader
	Topic  string
	Logger *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{Reader: reader, Topic: topic, Logger: log}
}

// Run reads until ctx is canceled. Malformed messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context, handle func(models.OrderEvent)) error {
	c.Logger.LogKafka("CONSUMER_START", c.Topic, "relaying order events")
	for {
		msg, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to read order event: %w", err)
		}

		var event models.OrderEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.Logger.LogKafka("MALFORMED", c.Topic, fmt.Sprintf("offset %d: %v", msg.Offset, err))
			continue
		}
		handle(event)
	}
}

func (c *Consumer) Close() error {
	return c.Reader.Close()
}
