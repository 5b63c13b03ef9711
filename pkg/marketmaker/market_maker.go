// Package marketmaker provides a liquidity bot that keeps layered quotes on
// both sides of a product, replacing them on every tick.
package marketmaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erain9/tradesim/pkg/api"
	"go.uber.org/zap"
)

// MarketMaker represents the market making service
type MarketMaker struct {
	cfg          *Config
	logger       *zap.Logger
	orderPlacer  OrderPlacer
	priceFetcher PriceFetcher
	strategy     MarketMakerStrategy

	mu           sync.Mutex
	activeOrders map[string]struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMarketMaker creates a new market maker service
func NewMarketMaker(cfg *Config, logger *zap.Logger, orderPlacer OrderPlacer, priceFetcher PriceFetcher, strategy MarketMakerStrategy) *MarketMaker {
	return &MarketMaker{
		cfg:          cfg,
		logger:       logger.With(zap.String("component", "MarketMaker"), zap.String("account", cfg.Account)),
		orderPlacer:  orderPlacer,
		priceFetcher: priceFetcher,
		strategy:     strategy,
		activeOrders: make(map[string]struct{}),
		stopCh:       make(chan struct{}),
	}
}

// Start begins the market making process
func (m *MarketMaker) Start(ctx context.Context) {
	m.logger.Info("Starting market maker service",
		zap.String("product", m.cfg.Product),
		zap.Duration("update_interval", m.cfg.UpdateInterval))

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop waits for the loop to exit and cancels every quote still resting
func (m *MarketMaker) Stop(ctx context.Context) error {
	m.logger.Info("Stopping market maker service")
	m.stopOnce.Do(func() { close(m.stopCh) })

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for market maker to stop: %w", ctx.Err())
	}

	if err := m.cancelAllOrders(ctx); err != nil {
		return fmt.Errorf("failed to cancel orders during shutdown: %w", err)
	}
	m.logger.Info("Market maker stopped successfully")
	return nil
}

// ActiveOrders returns the ids of the quotes currently tracked
func (m *MarketMaker) ActiveOrders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.activeOrders))
	for id := range m.activeOrders {
		ids = append(ids, id)
	}
	return ids
}

func (m *MarketMaker) run(ctx context.Context) {
	defer m.wg.Done()

	// quote immediately rather than waiting a full interval
	if err := m.UpdateOrders(ctx); err != nil {
		m.logger.Error("Failed to update orders", zap.Error(err))
	}

	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Context cancelled, stopping market maker loop")
			return
		case <-m.stopCh:
			m.logger.Info("Stop signal received, stopping market maker loop")
			return
		case <-ticker.C:
			if err := m.UpdateOrders(ctx); err != nil {
				m.logger.Error("Failed to update orders", zap.Error(err))
			}
		}
	}
}

// UpdateOrders performs one cancel/replace cycle
func (m *MarketMaker) UpdateOrders(ctx context.Context) error {
	price, err := m.priceFetcher.FetchPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch price: %w", err)
	}

	orders, err := m.strategy.CalculateOrders(ctx, price)
	if err != nil {
		return fmt.Errorf("failed to calculate orders: %w", err)
	}

	if err := m.cancelAllOrders(ctx); err != nil {
		return fmt.Errorf("failed to cancel existing orders: %w", err)
	}

	placed := 0
	for _, order := range orders {
		resp, err := m.orderPlacer.CreateOrder(ctx, order)
		if err != nil {
			m.logger.Warn("Failed to place order",
				zap.String("side", order.Side),
				zap.String("price", order.Price),
				zap.Error(err))
			continue
		}
		placed++

		// quotes that crossed and filled on arrival are not tracked
		if resp.Remaining > 0 {
			m.mu.Lock()
			m.activeOrders[resp.OrderID] = struct{}{}
			m.mu.Unlock()
		}
	}

	m.logger.Info("Quotes refreshed",
		zap.Float64("reference_price", price),
		zap.Int("placed", placed),
		zap.Int("wanted", len(orders)))
	return nil
}

func (m *MarketMaker) cancelAllOrders(ctx context.Context) error {
	var lastErr error
	for _, orderID := range m.ActiveOrders() {
		if err := m.orderPlacer.CancelOrder(ctx, &api.CancelOrderRequest{OrderID: orderID}); err != nil {
			lastErr = err
			continue
		}
		m.mu.Lock()
		delete(m.activeOrders, orderID)
		m.mu.Unlock()
	}
	return lastErr
}
