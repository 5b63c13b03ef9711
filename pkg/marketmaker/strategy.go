package marketmaker

import (
	"context"

	"github.com/erain9/tradesim/pkg/api"
	"github.com/erain9/tradesim/pkg/core"
	"github.com/nikolaydubina/fpdecimal"
	"go.uber.org/zap"
)

// LayeredSymmetricQuoting quotes NumLevels bids and asks spaced evenly
// around the reference price.
type LayeredSymmetricQuoting struct {
	cfg    *Config
	logger *zap.Logger
}

// NewLayeredSymmetricQuoting creates a new LayeredSymmetricQuoting strategy
func NewLayeredSymmetricQuoting(cfg *Config, logger *zap.Logger) MarketMakerStrategy {
	return &LayeredSymmetricQuoting{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "LayeredSymmetricQuoting")),
	}
}

func (s *LayeredSymmetricQuoting) quote(side core.Side, price float64) *api.CreateOrderRequest {
	return &api.CreateOrderRequest{
		Product:  s.cfg.Product,
		Side:     side.String(),
		Price:    fpdecimal.FromFloat(roundPrice(price)).String(),
		Quantity: s.cfg.OrderSize,
		Expiry:   core.GoodTillCancel.String(),
		Account:  s.cfg.Account,
	}
}

// CalculateOrders implements MarketMakerStrategy. Bid levels that would fall
// below the minimum price are skipped.
func (s *LayeredSymmetricQuoting) CalculateOrders(_ context.Context, currentPrice float64) ([]*api.CreateOrderRequest, error) {
	baseHalfSpread := currentPrice * (s.cfg.BaseSpreadPercent / 2 / 100)
	priceStep := currentPrice * (s.cfg.PriceStepPercent / 100)

	orders := make([]*api.CreateOrderRequest, 0, s.cfg.NumLevels*2)

	for i := 0; i < s.cfg.NumLevels; i++ {
		bidPrice := currentPrice - baseHalfSpread - float64(i)*priceStep
		askPrice := currentPrice + baseHalfSpread + float64(i)*priceStep

		if roundPrice(bidPrice) >= minPrice {
			orders = append(orders, s.quote(core.Buy, bidPrice))
		}
		orders = append(orders, s.quote(core.Sell, askPrice))

		s.logger.Debug("Calculated order pair",
			zap.Int("level", i+1),
			zap.Float64("bid_price", bidPrice),
			zap.Float64("ask_price", askPrice),
			zap.Int64("quantity", s.cfg.OrderSize))
	}

	return orders, nil
}
