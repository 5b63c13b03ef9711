package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/erain9/tradesim/pkg/account"
	"github.com/erain9/tradesim/pkg/api"
	"github.com/erain9/tradesim/pkg/core"
	"github.com/erain9/tradesim/pkg/feed"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

type testStack struct {
	engine *core.MatchingEngine
	ledger *account.Ledger
	broker *feed.Broker
	client *api.Client
}

func newTestStack(tb testing.TB) *testStack {
	tb.Helper()

	ledger := account.NewLedger()
	ledger.Seed(map[string]map[string]int64{"alice": {"AAPL": 100}})
	broker := feed.NewBroker()
	engine := core.NewMatchingEngine(
		core.WithIDProvider(&core.SequenceIDProvider{}),
		core.WithProducts("AAPL", "MSFT"),
		core.WithListener(ledger),
		core.WithListener(broker),
	)

	lis := bufconn.Listen(bufSize)
	grpcServer := NewGRPCServer()
	RegisterTradingService(grpcServer, NewTradingService(engine, ledger, broker))
	go func() {
		_ = grpcServer.Serve(lis)
	}()

	conn, err := api.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
	)
	require.NoError(tb, err)

	tb.Cleanup(func() {
		_ = conn.Close()
		grpcServer.Stop()
		broker.Close()
		_ = lis.Close()
	})

	return &testStack{engine: engine, ledger: ledger, broker: broker, client: api.NewClient(conn)}
}

func priceString(p int64) string {
	return fpdecimal.FromInt(p).String()
}

func TestTradingServiceCreateAndMatch(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	sell, err := s.client.CreateOrder(ctx, &api.CreateOrderRequest{
		Product: "AAPL", Side: "SELL", Price: "101", Quantity: 10, Expiry: "GTC", Account: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "1", sell.OrderID)
	assert.Equal(t, string(core.StatusNew), sell.Status)
	assert.Equal(t, int64(10), sell.Remaining)

	buy, err := s.client.CreateOrder(ctx, &api.CreateOrderRequest{
		Product: "AAPL", Side: "BUY", Price: "102", Quantity: 4, Expiry: "GTC", Account: "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, string(core.StatusFilled), buy.Status)
	assert.Equal(t, int64(4), buy.Filled)

	resting, err := s.client.GetOrder(ctx, &api.GetOrderRequest{OrderID: sell.OrderID})
	require.NoError(t, err)
	assert.Equal(t, string(core.StatusPartiallyFilled), resting.Status)
	assert.Equal(t, int64(6), resting.Remaining)

	tob, err := s.client.GetTopOfBook(ctx, &api.TopOfBookRequest{Product: "AAPL"})
	require.NoError(t, err)
	assert.Empty(t, tob.Bids)
	require.Len(t, tob.Asks, 1)
	assert.Equal(t, priceString(101), tob.Asks[0].Price)
	assert.Equal(t, int64(6), tob.Asks[0].Quantity)
	assert.Equal(t, int32(1), tob.Asks[0].OrderCount)

	owned, err := s.client.GetQuantityOwned(ctx, &api.QuantityOwnedRequest{Account: "bob", Product: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), owned.Quantity)

	owned, err = s.client.GetQuantityOwned(ctx, &api.QuantityOwnedRequest{Account: "alice", Product: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, int64(96), owned.Quantity)
}

func TestTradingServiceFillOrKill(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	_, err := s.client.CreateOrder(ctx, &api.CreateOrderRequest{
		Product: "MSFT", Side: "SELL", Price: "50", Quantity: 5, Expiry: "GTC",
	})
	require.NoError(t, err)

	rejected, err := s.client.CreateOrder(ctx, &api.CreateOrderRequest{
		Product: "MSFT", Side: "BUY", Price: "50", Quantity: 6, Expiry: "FOK",
	})
	require.NoError(t, err)
	assert.Equal(t, string(core.StatusRejected), rejected.Status)
	assert.Equal(t, int64(0), rejected.Filled)

	tob, err := s.client.GetTopOfBook(ctx, &api.TopOfBookRequest{Product: "MSFT"})
	require.NoError(t, err)
	require.Len(t, tob.Asks, 1)
	assert.Equal(t, int64(5), tob.Asks[0].Quantity)
}

func TestTradingServiceCancel(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	order, err := s.client.CreateOrder(ctx, &api.CreateOrderRequest{
		Product: "AAPL", Side: "BUY", Price: "99.5", Quantity: 3, Expiry: "GTC",
	})
	require.NoError(t, err)

	canceled, err := s.client.CancelOrder(ctx, &api.CancelOrderRequest{OrderID: order.OrderID})
	require.NoError(t, err)
	assert.Equal(t, string(core.StatusCanceled), canceled.Status)

	_, err = s.client.CancelOrder(ctx, &api.CancelOrderRequest{OrderID: order.OrderID})
	assert.Equal(t, codes.NotFound, status.Code(err))

	tob, err := s.client.GetTopOfBook(ctx, &api.TopOfBookRequest{Product: "AAPL"})
	require.NoError(t, err)
	assert.Empty(t, tob.Bids)
}

func TestTradingServiceErrors(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *api.CreateOrderRequest
		code codes.Code
	}{
		{"zero quantity", &api.CreateOrderRequest{Product: "AAPL", Side: "BUY", Price: "1", Quantity: 0, Expiry: "GTC"}, codes.InvalidArgument},
		{"bad price", &api.CreateOrderRequest{Product: "AAPL", Side: "BUY", Price: "abc", Quantity: 1, Expiry: "GTC"}, codes.InvalidArgument},
		{"bad side", &api.CreateOrderRequest{Product: "AAPL", Side: "HOLD", Price: "1", Quantity: 1, Expiry: "GTC"}, codes.InvalidArgument},
		{"bad expiry", &api.CreateOrderRequest{Product: "AAPL", Side: "BUY", Price: "1", Quantity: 1, Expiry: "IOC"}, codes.InvalidArgument},
		{"unknown product", &api.CreateOrderRequest{Product: "TSLA", Side: "BUY", Price: "1", Quantity: 1, Expiry: "GTC"}, codes.FailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.client.CreateOrder(ctx, tt.req)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}

	_, err := s.client.GetOrder(ctx, &api.GetOrderRequest{OrderID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = s.client.GetTopOfBook(ctx, &api.TopOfBookRequest{Product: "TSLA"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = s.client.GetQuantityOwned(ctx, &api.QuantityOwnedRequest{Account: "", Product: "AAPL"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.client.GetQuantityOwned(ctx, &api.QuantityOwnedRequest{Account: "bob", Product: "TSLA"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestTradingServiceListProducts(t *testing.T) {
	s := newTestStack(t)

	resp, err := s.client.ListProducts(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, resp.Products)
}

func TestTradingServiceDepth(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	for i := int64(1); i <= 8; i++ {
		_, err := s.client.CreateOrder(ctx, &api.CreateOrderRequest{
			Product: "AAPL", Side: "BUY", Price: priceString(90 + i), Quantity: i, Expiry: "GTC",
		})
		require.NoError(t, err)
	}

	tob, err := s.client.GetTopOfBook(ctx, &api.TopOfBookRequest{Product: "AAPL"})
	require.NoError(t, err)
	require.Len(t, tob.Bids, core.TopOfBookDepth)
	assert.Equal(t, priceString(98), tob.Bids[0].Price)

	tob, err = s.client.GetTopOfBook(ctx, &api.TopOfBookRequest{Product: "AAPL", Depth: 7})
	require.NoError(t, err)
	require.Len(t, tob.Bids, 7)
	assert.Equal(t, priceString(92), tob.Bids[6].Price)
}

func TestTradingServiceSubscribeTopOfBook(t *testing.T) {
	s := newTestStack(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := s.client.SubscribeTopOfBook(ctx, &api.TopOfBookRequest{Product: "AAPL"})
	require.NoError(t, err)

	initial, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "AAPL", initial.Product)
	assert.Empty(t, initial.Bids)
	assert.Empty(t, initial.Asks)

	_, err = s.client.CreateOrder(ctx, &api.CreateOrderRequest{
		Product: "AAPL", Side: "BUY", Price: "100", Quantity: 7, Expiry: "GTC",
	})
	require.NoError(t, err)

	update, err := stream.Recv()
	require.NoError(t, err)
	assert.Greater(t, update.Sequence, initial.Sequence)
	require.Len(t, update.Bids, 1)
	assert.Equal(t, int64(7), update.Bids[0].Quantity)

	// other products do not reach this subscriber
	_, err = s.client.CreateOrder(ctx, &api.CreateOrderRequest{
		Product: "MSFT", Side: "BUY", Price: "10", Quantity: 1, Expiry: "GTC",
	})
	require.NoError(t, err)
	_, err = s.client.CreateOrder(ctx, &api.CreateOrderRequest{
		Product: "AAPL", Side: "SELL", Price: "100", Quantity: 2, Expiry: "GTC",
	})
	require.NoError(t, err)

	next, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "AAPL", next.Product)
	require.Len(t, next.Bids, 1)
	assert.Equal(t, int64(5), next.Bids[0].Quantity)

	cancel()
	assert.Eventually(t, func() bool {
		return s.broker.Subscribers("AAPL") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTradingServiceSubscribeUnknownProduct(t *testing.T) {
	s := newTestStack(t)

	stream, err := s.client.SubscribeTopOfBook(context.Background(), &api.TopOfBookRequest{Product: "TSLA"})
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.NotFound, status.Code(err))
}
