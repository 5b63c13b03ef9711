package api

import (
	"context"

	"github.com/erain9/tradesim/pkg/otel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Dial opens a plaintext connection to a TradingService with client-side
// tracing. Extra options are appended after the defaults.
func Dial(target string, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otel.NewGRPCClientStatsHandler()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	return grpc.NewClient(target, append(opts, extra...)...)
}

// Client is a typed TradingService client
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, fullMethod(method), in, out, opts...)
}

// CreateOrder submits a new order
func (c *Client) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.invoke(ctx, "CreateOrder", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// CancelOrder cancels a live order
func (c *Client) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.invoke(ctx, "CancelOrder", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrder looks up an order
func (c *Client) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.invoke(ctx, "GetOrder", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTopOfBook fetches the best levels of a product
func (c *Client) GetTopOfBook(ctx context.Context, in *TopOfBookRequest, opts ...grpc.CallOption) (*TopOfBookResponse, error) {
	out := new(TopOfBookResponse)
	if err := c.invoke(ctx, "GetTopOfBook", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// ListProducts lists tradable symbols
func (c *Client) ListProducts(ctx context.Context, opts ...grpc.CallOption) (*ListProductsResponse, error) {
	out := new(ListProductsResponse)
	if err := c.invoke(ctx, "ListProducts", &emptypb.Empty{}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// GetQuantityOwned reports an account's holding of a product
func (c *Client) GetQuantityOwned(ctx context.Context, in *QuantityOwnedRequest, opts ...grpc.CallOption) (*QuantityOwnedResponse, error) {
	out := new(QuantityOwnedResponse)
	if err := c.invoke(ctx, "GetQuantityOwned", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// TopOfBookStream receives pushed snapshots; cancel the call context to unsubscribe
type TopOfBookStream interface {
	Recv() (*TopOfBookResponse, error)
	grpc.ClientStream
}

type topOfBookClientStream struct {
	grpc.ClientStream
}

func (s *topOfBookClientStream) Recv() (*TopOfBookResponse, error) {
	m := new(TopOfBookResponse)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// SubscribeTopOfBook opens a stream of snapshots for one product. The first
// message is the current book; every later one follows a book change.
func (c *Client) SubscribeTopOfBook(ctx context.Context, in *TopOfBookRequest, opts ...grpc.CallOption) (TopOfBookStream, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &TradingServiceDesc.Streams[0], fullMethod("SubscribeTopOfBook"), opts...)
	if err != nil {
		return nil, err
	}
	s := &topOfBookClientStream{stream}
	if err := s.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := s.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return s, nil
}
