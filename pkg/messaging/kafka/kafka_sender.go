package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erain9/tradesim/pkg/messaging"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the sender uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMessageSender implements MessageSender using Kafka
type KafkaMessageSender struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

// NewKafkaMessageSender creates a new Kafka message sender. Messages are keyed
// by product so one product's executions stay ordered within a partition.
func NewKafkaMessageSender(brokers []string, topic string) (*KafkaMessageSender, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: no topic configured")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	return &KafkaMessageSender{
		writer:  writer,
		topic:   topic,
		timeout: 5 * time.Second,
	}, nil
}

// SendMatchMessage sends a match message to Kafka
func (k *KafkaMessageSender) SendMatchMessage(ctx context.Context, msg *messaging.MatchMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal match message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Product),
		Value: data,
		Time:  time.Unix(0, msg.Timestamp),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to Kafka topic %s: %w", k.topic, err)
	}

	return nil
}

// Close closes the Kafka writer
func (k *KafkaMessageSender) Close() error {
	return k.writer.Close()
}

var _ messaging.MessageSender = (*KafkaMessageSender)(nil)
