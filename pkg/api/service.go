package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "tradesim.TradingService"

// TradingServiceServer is the server API for TradingService
type TradingServiceServer interface {
	CreateOrder(context.Context, *CreateOrderRequest) (*OrderResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*OrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*OrderResponse, error)
	GetTopOfBook(context.Context, *TopOfBookRequest) (*TopOfBookResponse, error)
	ListProducts(context.Context, *emptypb.Empty) (*ListProductsResponse, error)
	GetQuantityOwned(context.Context, *QuantityOwnedRequest) (*QuantityOwnedResponse, error)
	SubscribeTopOfBook(*TopOfBookRequest, TopOfBookServerStream) error
}

// TopOfBookServerStream is the server side of SubscribeTopOfBook
type TopOfBookServerStream interface {
	Send(*TopOfBookResponse) error
	grpc.ServerStream
}

// UnimplementedTradingServiceServer can be embedded to satisfy the interface
// while only some methods are implemented.
type UnimplementedTradingServiceServer struct{}

func (UnimplementedTradingServiceServer) CreateOrder(context.Context, *CreateOrderRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateOrder not implemented")
}
func (UnimplementedTradingServiceServer) CancelOrder(context.Context, *CancelOrderRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelOrder not implemented")
}
func (UnimplementedTradingServiceServer) GetOrder(context.Context, *GetOrderRequest) (*OrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOrder not implemented")
}
func (UnimplementedTradingServiceServer) GetTopOfBook(context.Context, *TopOfBookRequest) (*TopOfBookResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetTopOfBook not implemented")
}
func (UnimplementedTradingServiceServer) ListProducts(context.Context, *emptypb.Empty) (*ListProductsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListProducts not implemented")
}
func (UnimplementedTradingServiceServer) GetQuantityOwned(context.Context, *QuantityOwnedRequest) (*QuantityOwnedResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetQuantityOwned not implemented")
}
func (UnimplementedTradingServiceServer) SubscribeTopOfBook(*TopOfBookRequest, TopOfBookServerStream) error {
	return status.Error(codes.Unimplemented, "method SubscribeTopOfBook not implemented")
}

// RegisterTradingServiceServer registers srv on s
func RegisterTradingServiceServer(s grpc.ServiceRegistrar, srv TradingServiceServer) {
	s.RegisterService(&TradingServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unaryHandler[Req, Resp any](name string, call func(TradingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TradingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TradingServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type topOfBookServerStream struct {
	grpc.ServerStream
}

func (s *topOfBookServerStream) Send(m *TopOfBookResponse) error {
	return s.ServerStream.SendMsg(m)
}

func subscribeTopOfBookHandler(srv any, stream grpc.ServerStream) error {
	in := new(TopOfBookRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TradingServiceServer).SubscribeTopOfBook(in, &topOfBookServerStream{stream})
}

// TradingServiceDesc describes TradingService for grpc.Server.RegisterService
var TradingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TradingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateOrder",
			Handler:    unaryHandler("CreateOrder", TradingServiceServer.CreateOrder),
		},
		{
			MethodName: "CancelOrder",
			Handler:    unaryHandler("CancelOrder", TradingServiceServer.CancelOrder),
		},
		{
			MethodName: "GetOrder",
			Handler:    unaryHandler("GetOrder", TradingServiceServer.GetOrder),
		},
		{
			MethodName: "GetTopOfBook",
			Handler:    unaryHandler("GetTopOfBook", TradingServiceServer.GetTopOfBook),
		},
		{
			MethodName: "ListProducts",
			Handler:    unaryHandler("ListProducts", TradingServiceServer.ListProducts),
		},
		{
			MethodName: "GetQuantityOwned",
			Handler:    unaryHandler("GetQuantityOwned", TradingServiceServer.GetQuantityOwned),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubscribeTopOfBook",
			Handler:       subscribeTopOfBookHandler,
			ServerStreams: true,
		},
	},
	Metadata: "tradesim/trading_service",
}
