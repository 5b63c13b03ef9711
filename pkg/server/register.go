package server

import (
	"github.com/erain9/tradesim/pkg/api"
	"github.com/erain9/tradesim/pkg/logging"
	"github.com/erain9/tradesim/pkg/otel"
	"google.golang.org/grpc"
)

// RegisterTradingService registers the trading service with the provided gRPC server
func RegisterTradingService(grpcServer *grpc.Server, service *TradingService) {
	api.RegisterTradingServiceServer(grpcServer, service)
}

// NewGRPCServer builds a server with tracing and request logging installed
func NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otel.NewGRPCStatsHandler()),
		grpc.ChainUnaryInterceptor(logging.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(logging.StreamServerInterceptor()),
	}
	return grpc.NewServer(append(base, opts...)...)
}
