package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"ms-rental/internal/logger"
	"ms-rental/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes order events keyed by order id, so every event of one order
// lands on the same partition in commit order.
type Producer struct {
	Writer MessageWriter
	Topic  string
	Logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topic: topic, Logger: log}
}

// Notify implements order.Notifier.
func (p *Producer) Notify(ctx context.Context, event models.OrderEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(event.OrderID, 10)),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(event.Action)},
		},
	})
	if err != nil {
		p.Logger.LogKafka("PUBLISH_FAILED", p.Topic, fmt.Sprintf("order %d %s: %v", event.OrderID, event.Action, err))
		return fmt.Errorf("failed to publish order event: %w", err)
	}
	p.Logger.LogKafka("PUBLISH", p.Topic, fmt.Sprintf("order %d %s", event.OrderID, event.Action))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
