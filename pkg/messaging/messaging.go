package messaging

import (
	"context"

	"github.com/erain9/tradesim/pkg/core"
)

// MessageSender defines an interface for sending messages
// This helps decouple the engine from specific transports
// like the Kafka writers in the kafka and queue packages
type MessageSender interface {
	SendMatchMessage(ctx context.Context, msg *MatchMessage) error
	Close() error
}

// MatchMessage represents one execution as published to downstream systems
type MatchMessage struct {
	Product          string `json:"product"`
	AggressorOrderID string `json:"aggressor_order_id"`
	RestingOrderID   string `json:"resting_order_id"`
	AggressorSide    string `json:"aggressor_side"`
	Price            string `json:"price"`
	Quantity         int64  `json:"quantity"`
	Buyer            string `json:"buyer,omitempty"`
	Seller           string `json:"seller,omitempty"`
	Timestamp        int64  `json:"timestamp"`
}

// NewMatchMessage flattens an engine execution
func NewMatchMessage(exec core.Execution) *MatchMessage {
	return &MatchMessage{
		Product:          exec.Product,
		AggressorOrderID: exec.Match.AggressorOrderID,
		RestingOrderID:   exec.Match.RestingOrderID,
		AggressorSide:    exec.AggressorSide.String(),
		Price:            exec.Match.Price.String(),
		Quantity:         exec.Match.Quantity,
		Buyer:            exec.Buyer(),
		Seller:           exec.Seller(),
		Timestamp:        exec.Match.Timestamp,
	}
}
