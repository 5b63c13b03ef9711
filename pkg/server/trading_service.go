// Package server exposes the matching engine over gRPC and HTTP.
package server

import (
	"context"
	"errors"

	"github.com/erain9/tradesim/pkg/account"
	"github.com/erain9/tradesim/pkg/api"
	"github.com/erain9/tradesim/pkg/core"
	"github.com/erain9/tradesim/pkg/feed"
	"github.com/erain9/tradesim/pkg/logging"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

const maxDepth = 100

// TradingService implements the TradingService gRPC interface
type TradingService struct {
	api.UnimplementedTradingServiceServer

	engine     *core.MatchingEngine
	ledger     *account.Ledger
	feed       *feed.Broker
	feedBuffer int
}

// NewTradingService creates a service over engine. The ledger and broker must
// be registered as listeners on the same engine.
func NewTradingService(engine *core.MatchingEngine, ledger *account.Ledger, broker *feed.Broker) *TradingService {
	return &TradingService{
		engine:     engine,
		ledger:     ledger,
		feed:       broker,
		feedBuffer: feed.DefaultBuffer,
	}
}

// SetFeedBuffer changes the queue length given to new stream subscribers
func (s *TradingService) SetFeedBuffer(n int) {
	if n > 0 {
		s.feedBuffer = n
	}
}

// errorStatus maps engine errors to gRPC status codes
func errorStatus(err error) error {
	switch {
	case errors.Is(err, core.ErrInvalidQuantity),
		errors.Is(err, core.ErrInvalidPrice),
		errors.Is(err, core.ErrInvalidSide),
		errors.Is(err, core.ErrInvalidExpiry):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, core.ErrUnknownProduct):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Errorf(codes.Internal, "order processing failed: %v", err)
	}
}

// CreateOrder submits a new order to the engine
func (s *TradingService) CreateOrder(ctx context.Context, req *api.CreateOrderRequest) (*api.OrderResponse, error) {
	logger := logging.FromContext(ctx).With().
		Str("method", "CreateOrder").
		Str("product", req.Product).
		Logger()

	logger.Debug().
		Str("side", req.Side).
		Str("price", req.Price).
		Int64("quantity", req.Quantity).
		Str("expiry", req.Expiry).
		Msg("Request received")

	orderReq, err := req.ToCore()
	if err != nil {
		return nil, errorStatus(err)
	}

	state, err := s.engine.CreateOrder(logger.WithContext(ctx), orderReq)
	if err != nil {
		if !errors.Is(err, core.ErrUnknownProduct) {
			logger.Error().Err(err).Msg("Failed to process order")
		}
		return nil, errorStatus(err)
	}

	logger.Info().
		Str("order_id", state.Order.ID).
		Str("status", string(state.Status)).
		Int64("filled", state.Order.Filled).
		Msg("Order accepted")

	return api.NewOrderResponse(state), nil
}

// CancelOrder cancels a live order
func (s *TradingService) CancelOrder(ctx context.Context, req *api.CancelOrderRequest) (*api.OrderResponse, error) {
	logger := logging.FromContext(ctx).With().
		Str("method", "CancelOrder").
		Str("order_id", req.OrderID).
		Logger()

	state, ok := s.engine.CancelOrder(logger.WithContext(ctx), req.OrderID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "order %s not found or no longer live", req.OrderID)
	}

	logger.Info().Str("product", state.Order.Product).Msg("Order canceled")
	return api.NewOrderResponse(state), nil
}

// GetOrder retrieves information about a specific order
func (s *TradingService) GetOrder(_ context.Context, req *api.GetOrderRequest) (*api.OrderResponse, error) {
	state, ok := s.engine.GetOrder(req.OrderID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "order %s not found", req.OrderID)
	}
	return api.NewOrderResponse(state), nil
}

func clampDepth(depth int32) int {
	switch {
	case depth <= 0:
		return core.TopOfBookDepth
	case depth > maxDepth:
		return maxDepth
	default:
		return int(depth)
	}
}

// GetTopOfBook returns the best levels of both sides of a product
func (s *TradingService) GetTopOfBook(_ context.Context, req *api.TopOfBookRequest) (*api.TopOfBookResponse, error) {
	tob, err := s.engine.Depth(req.Product, clampDepth(req.Depth))
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "product %s not found", req.Product)
	}
	return api.NewTopOfBookResponse(tob), nil
}

// ListProducts lists the tradable products
func (s *TradingService) ListProducts(context.Context, *emptypb.Empty) (*api.ListProductsResponse, error) {
	return &api.ListProductsResponse{Products: s.engine.Products()}, nil
}

// GetQuantityOwned reports an account's holding of a product
func (s *TradingService) GetQuantityOwned(_ context.Context, req *api.QuantityOwnedRequest) (*api.QuantityOwnedResponse, error) {
	if req.Account == "" {
		return nil, status.Error(codes.InvalidArgument, "account is required")
	}
	if !s.engine.HasProduct(req.Product) {
		return nil, status.Errorf(codes.NotFound, "product %s not found", req.Product)
	}
	return &api.QuantityOwnedResponse{
		Account:  req.Account,
		Product:  req.Product,
		Quantity: s.ledger.QuantityOwned(req.Account, req.Product),
	}, nil
}

// SubscribeTopOfBook streams the current book and then every change until the
// client goes away.
func (s *TradingService) SubscribeTopOfBook(req *api.TopOfBookRequest, stream api.TopOfBookServerStream) error {
	ctx := stream.Context()
	logger := logging.FromContext(ctx).With().
		Str("method", "SubscribeTopOfBook").
		Str("product", req.Product).
		Logger()

	if !s.engine.HasProduct(req.Product) {
		return status.Errorf(codes.NotFound, "product %s not found", req.Product)
	}

	// subscribe before taking the snapshot so no change is lost in between
	sub, err := s.feed.Subscribe(req.Product, s.feedBuffer)
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}
	defer sub.Close()

	current, err := s.engine.TopOfBook(req.Product)
	if err != nil {
		return status.Errorf(codes.NotFound, "product %s not found", req.Product)
	}
	if err := stream.Send(api.NewTopOfBookResponse(current)); err != nil {
		return err
	}
	last := current.Sequence

	logger.Debug().Msg("Subscriber attached")
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Uint64("dropped", sub.Dropped()).Msg("Subscriber detached")
			return nil
		case tob, ok := <-sub.C():
			if !ok {
				return status.Error(codes.Unavailable, "feed closed")
			}
			if tob.Sequence <= last {
				continue
			}
			last = tob.Sequence
			if err := stream.Send(api.NewTopOfBookResponse(tob)); err != nil {
				return err
			}
		}
	}
}

var _ api.TradingServiceServer = (*TradingService)(nil)
