package api

import (
	"fmt"
	"time"

	"github.com/erain9/tradesim/pkg/core"
	"github.com/nikolaydubina/fpdecimal"
)

// CreateOrderRequest submits a limit order. Side and expiry are the names
// accepted by core.ParseSide and core.ParseExpiry; price is a decimal string.
type CreateOrderRequest struct {
	Product  string `json:"product"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
	Expiry   string `json:"expiry"`
	Account  string `json:"account,omitempty"`
}

// ToCore parses the request into an engine request and validates it
func (r *CreateOrderRequest) ToCore() (core.OrderRequest, error) {
	side, err := core.ParseSide(r.Side)
	if err != nil {
		return core.OrderRequest{}, err
	}
	expiry, err := core.ParseExpiry(r.Expiry)
	if err != nil {
		return core.OrderRequest{}, err
	}
	price, err := fpdecimal.FromString(r.Price)
	if err != nil {
		return core.OrderRequest{}, fmt.Errorf("%w: %q", core.ErrInvalidPrice, r.Price)
	}

	req := core.OrderRequest{
		Product:  r.Product,
		Side:     side,
		Price:    price,
		Quantity: r.Quantity,
		Expiry:   expiry,
		Account:  r.Account,
	}
	return req, req.Validate()
}

// CancelOrderRequest identifies the order to cancel
type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
}

// GetOrderRequest identifies the order to look up
type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

// OrderResponse is the state of one order
type OrderResponse struct {
	OrderID   string    `json:"order_id"`
	Product   string    `json:"product"`
	Side      string    `json:"side"`
	Price     string    `json:"price"`
	Quantity  int64     `json:"quantity"`
	Filled    int64     `json:"filled"`
	Remaining int64     `json:"remaining"`
	Expiry    string    `json:"expiry"`
	Status    string    `json:"status"`
	Account   string    `json:"account,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewOrderResponse converts an engine order state
func NewOrderResponse(s core.OrderState) *OrderResponse {
	return &OrderResponse{
		OrderID:   s.Order.ID,
		Product:   s.Order.Product,
		Side:      s.Order.Side.String(),
		Price:     s.Order.Price.String(),
		Quantity:  s.Order.Quantity,
		Filled:    s.Order.Filled,
		Remaining: s.Order.Remaining(),
		Expiry:    s.Order.Expiry.String(),
		Status:    string(s.Status),
		Account:   s.Order.Account,
		CreatedAt: s.Order.CreatedAt,
	}
}

// TopOfBookRequest selects a product; Depth 0 means the default of five levels
type TopOfBookRequest struct {
	Product string `json:"product"`
	Depth   int32  `json:"depth,omitempty"`
}

// PriceLevel is one aggregated level of a book side
type PriceLevel struct {
	Price      string `json:"price"`
	Quantity   int64  `json:"quantity"`
	OrderCount int32  `json:"order_count"`
}

// TopOfBookResponse carries the best levels of both sides
type TopOfBookResponse struct {
	Product  string       `json:"product"`
	Bids     []PriceLevel `json:"bids"`
	Asks     []PriceLevel `json:"asks"`
	Sequence uint64       `json:"sequence"`
}

// NewTopOfBookResponse converts an engine snapshot
func NewTopOfBookResponse(tob core.TopOfBook) *TopOfBookResponse {
	return &TopOfBookResponse{
		Product:  tob.Product,
		Bids:     convertLevels(tob.Bids),
		Asks:     convertLevels(tob.Asks),
		Sequence: tob.Sequence,
	}
}

func convertLevels(levels []core.LevelSummary) []PriceLevel {
	out := make([]PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, PriceLevel{
			Price:      l.Price.String(),
			Quantity:   l.Quantity,
			OrderCount: int32(l.OrderCount),
		})
	}
	return out
}

// ListProductsResponse lists tradable symbols
type ListProductsResponse struct {
	Products []string `json:"products"`
}

// QuantityOwnedRequest asks for an account's holding of one product
type QuantityOwnedRequest struct {
	Account string `json:"account"`
	Product string `json:"product"`
}

// QuantityOwnedResponse reports a holding; it may be negative after short sales
type QuantityOwnedResponse struct {
	Account  string `json:"account"`
	Product  string `json:"product"`
	Quantity int64  `json:"quantity"`
}
