// Package queue publishes match messages through an IBM/sarama producer,
// encoded as protobuf Struct values.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/IBM/sarama"
	"github.com/erain9/tradesim/pkg/messaging"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const defaultMaxRetry = 5

// seams for tests
var (
	newSyncProducer = sarama.NewSyncProducer
	newConsumer     = sarama.NewConsumer
)

// Config selects the brokers and topic
type Config struct {
	Brokers  []string
	Topic    string
	MaxRetry int
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("queue: no brokers configured")
	}
	if c.Topic == "" {
		return errors.New("queue: no topic configured")
	}
	return nil
}

// QueueMessageSender implements the MessageSender interface
// for sending messages to Kafka
type QueueMessageSender struct {
	producer sarama.SyncProducer
	topic    string
}

// NewQueueMessageSender connects a synchronous producer
func NewQueueMessageSender(cfg Config) (*QueueMessageSender, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = defaultMaxRetry
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = cfg.MaxRetry
	sc.Producer.Return.Successes = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := newSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &QueueMessageSender{producer: producer, topic: cfg.Topic}, nil
}

// SendMatchMessage sends the MatchMessage to the Kafka queue
func (q *QueueMessageSender) SendMatchMessage(ctx context.Context, msg *messaging.MatchMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := EncodeMatchMessage(msg)
	if err != nil {
		return err
	}

	_, _, err = q.producer.SendMessage(&sarama.ProducerMessage{
		Topic: q.topic,
		Key:   sarama.StringEncoder(msg.Product),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}
	return nil
}

// Close closes the producer
func (q *QueueMessageSender) Close() error {
	return q.producer.Close()
}

var _ messaging.MessageSender = (*QueueMessageSender)(nil)

// EncodeMatchMessage serialises msg as a protobuf Struct. The timestamp is
// carried as text since nanoseconds do not fit a float64 exactly.
func EncodeMatchMessage(msg *messaging.MatchMessage) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]any{
		"product":            msg.Product,
		"aggressor_order_id": msg.AggressorOrderID,
		"resting_order_id":   msg.RestingOrderID,
		"aggressor_side":     msg.AggressorSide,
		"price":              msg.Price,
		"quantity":           msg.Quantity,
		"buyer":              msg.Buyer,
		"seller":             msg.Seller,
		"timestamp":          strconv.FormatInt(msg.Timestamp, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build match message: %w", err)
	}

	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal match message: %w", err)
	}
	return data, nil
}

// DecodeMatchMessage reverses EncodeMatchMessage
func DecodeMatchMessage(data []byte) (*messaging.MatchMessage, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match message: %w", err)
	}

	f := st.GetFields()
	ts, err := strconv.ParseInt(f["timestamp"].GetStringValue(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad match timestamp: %w", err)
	}
	return &messaging.MatchMessage{
		Product:          f["product"].GetStringValue(),
		AggressorOrderID: f["aggressor_order_id"].GetStringValue(),
		RestingOrderID:   f["resting_order_id"].GetStringValue(),
		AggressorSide:    f["aggressor_side"].GetStringValue(),
		Price:            f["price"].GetStringValue(),
		Quantity:         int64(f["quantity"].GetNumberValue()),
		Buyer:            f["buyer"].GetStringValue(),
		Seller:           f["seller"].GetStringValue(),
		Timestamp:        ts,
	}, nil
}

// QueueMessageConsumer reads match messages from partition 0 of a topic
type QueueMessageConsumer struct {
	consumer  sarama.Consumer
	topic     string
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueueMessageConsumer connects a consumer for cfg.Topic
func NewQueueMessageConsumer(cfg Config) (*QueueMessageConsumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	consumer, err := newConsumer(cfg.Brokers, sarama.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	return &QueueMessageConsumer{consumer: consumer, topic: cfg.Topic, done: make(chan struct{})}, nil
}

// ConsumeMatchMessages blocks, passing each decoded message to handler, until
// Close is called. Handler errors stop consumption.
func (c *QueueMessageConsumer) ConsumeMatchMessages(handler func(*messaging.MatchMessage) error) error {
	pc, err := c.consumer.ConsumePartition(c.topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer pc.Close()

	for {
		select {
		case <-c.done:
			return nil
		case m, ok := <-pc.Messages():
			if !ok {
				return nil
			}
			msg, err := DecodeMatchMessage(m.Value)
			if err != nil {
				continue
			}
			if err := handler(msg); err != nil {
				return err
			}
		case cerr, ok := <-pc.Errors():
			if !ok {
				return nil
			}
			return cerr
		}
	}
}

// Close stops consumption and releases the consumer
func (c *QueueMessageConsumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.consumer.Close()
	})
	return err
}
