package marketmaker

import (
	"context"

	"github.com/erain9/tradesim/pkg/api"
)

// PriceFetcher supplies the reference price quotes are built around
type PriceFetcher interface {
	// FetchPrice returns the current reference price for the configured product
	FetchPrice(ctx context.Context) (float64, error)
	// Close releases any resources held by the price fetcher
	Close() error
}

// OrderPlacer places and cancels orders
type OrderPlacer interface {
	CreateOrder(ctx context.Context, req *api.CreateOrderRequest) (*api.OrderResponse, error)
	CancelOrder(ctx context.Context, req *api.CancelOrderRequest) error
	Close() error
}

// MarketMakerStrategy turns a reference price into a set of quotes
type MarketMakerStrategy interface {
	CalculateOrders(ctx context.Context, currentPrice float64) ([]*api.CreateOrderRequest, error)
}
