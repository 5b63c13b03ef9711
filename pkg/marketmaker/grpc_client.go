package marketmaker

import (
	"context"
	"fmt"

	"github.com/erain9/tradesim/pkg/api"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Ensure grpcOrderPlacer implements OrderPlacer interface
var _ OrderPlacer = (*grpcOrderPlacer)(nil)

// grpcOrderPlacer implements OrderPlacer over the TradingService client
type grpcOrderPlacer struct {
	client  *api.Client
	conn    *grpc.ClientConn
	limiter *rate.Limiter
	cfg     *Config
	logger  *zap.Logger
}

// NewGRPCOrderPlacer dials cfg.GRPCAddr and returns an OrderPlacer
func NewGRPCOrderPlacer(cfg *Config, logger *zap.Logger) (OrderPlacer, error) {
	logger.Info("Connecting to tradesim gRPC server", zap.String("address", cfg.GRPCAddr))

	conn, err := api.Dial(cfg.GRPCAddr, grpc.WithUserAgent("TradesimMarketMaker/0.1"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server at %s: %w", cfg.GRPCAddr, err)
	}

	p := newOrderPlacer(api.NewClient(conn), cfg, logger)
	p.conn = conn
	return p, nil
}

func newOrderPlacer(client *api.Client, cfg *Config, logger *zap.Logger) *grpcOrderPlacer {
	burst := max(int(cfg.OrdersPerSecond), 1)
	return &grpcOrderPlacer{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.OrdersPerSecond), burst),
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "grpcOrderPlacer")),
	}
}

// CreateOrder sends a CreateOrder request to the server
func (p *grpcOrderPlacer) CreateOrder(ctx context.Context, req *api.CreateOrderRequest) (*api.OrderResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	p.logger.Debug("Sending CreateOrder request",
		zap.String("product", req.Product),
		zap.String("side", req.Side),
		zap.Int64("qty", req.Quantity),
		zap.String("price", req.Price))

	resp, err := p.client.CreateOrder(callCtx, req)
	if err != nil {
		p.logger.Error("CreateOrder RPC failed",
			zap.String("product", req.Product),
			zap.Error(err))
		return nil, fmt.Errorf("CreateOrder failed: %w", err)
	}

	p.logger.Debug("Successfully created order",
		zap.String("order_id", resp.OrderID),
		zap.String("status", resp.Status))
	return resp, nil
}

// CancelOrder cancels an order. An order that is already gone counts as
// canceled.
func (p *grpcOrderPlacer) CancelOrder(ctx context.Context, req *api.CancelOrderRequest) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	_, err := p.client.CancelOrder(callCtx, req)
	if status.Code(err) == codes.NotFound {
		p.logger.Debug("CancelOrder skipped, order already filled or canceled",
			zap.String("order_id", req.OrderID))
		return nil
	}
	if err != nil {
		p.logger.Error("CancelOrder RPC failed",
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		return fmt.Errorf("CancelOrder failed: %w", err)
	}

	p.logger.Debug("Successfully cancelled order", zap.String("order_id", req.OrderID))
	return nil
}

// Close closes the underlying gRPC connection.
func (p *grpcOrderPlacer) Close() error {
	if p.conn != nil {
		p.logger.Info("Closing gRPC connection")
		return p.conn.Close()
	}
	return nil
}
