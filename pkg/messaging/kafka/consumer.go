package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/erain9/tradesim/pkg/messaging"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// ConsumeMatchMessages reads match messages from topic and passes each to
// handle until ctx is canceled. Undecodable messages are logged and skipped.
func ConsumeMatchMessages(ctx context.Context, reader *kafka.Reader, logger zerolog.Logger, handle func(*messaging.MatchMessage) error) error {
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		var msg messaging.MatchMessage
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			logger.Warn().Err(err).Int64("offset", m.Offset).Msg("Skipping undecodable match message")
			continue
		}
		if err := handle(&msg); err != nil {
			logger.Error().Err(err).Int64("offset", m.Offset).Msg("Match message handler failed")
		}
	}
}

// SetupConsumer starts a background reader that logs every match message. It
// is meant for local development; the returned reader must be closed.
func SetupConsumer(ctx context.Context, brokers []string, topic, groupID string, logger zerolog.Logger) *kafka.Reader {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	go func() {
		logger.Info().Str("topic", topic).Msg("Starting Kafka consumer")
		err := ConsumeMatchMessages(ctx, reader, logger, func(msg *messaging.MatchMessage) error {
			logger.Info().
				Str("product", msg.Product).
				Str("aggressor_order_id", msg.AggressorOrderID).
				Str("resting_order_id", msg.RestingOrderID).
				Str("price", msg.Price).
				Int64("quantity", msg.Quantity).
				Msg("Received match message")
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("Kafka consumer error")
		}
	}()

	return reader
}
