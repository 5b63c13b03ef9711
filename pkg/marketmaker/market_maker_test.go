package marketmaker

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/erain9/tradesim/pkg/account"
	"github.com/erain9/tradesim/pkg/api"
	"github.com/erain9/tradesim/pkg/core"
	"github.com/erain9/tradesim/pkg/feed"
	"github.com/erain9/tradesim/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

type fakePlacer struct {
	mu       sync.Mutex
	next     int
	created  []*api.CreateOrderRequest
	canceled []string
	failOn   string
}

func (p *fakePlacer) CreateOrder(_ context.Context, req *api.CreateOrderRequest) (*api.OrderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if req.Side == p.failOn {
		return nil, errors.New("rejected")
	}
	p.next++
	p.created = append(p.created, req)
	return &api.OrderResponse{OrderID: strconv.Itoa(p.next), Remaining: req.Quantity}, nil
}

func (p *fakePlacer) CancelOrder(_ context.Context, req *api.CancelOrderRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = append(p.canceled, req.OrderID)
	return nil
}

func (p *fakePlacer) Close() error { return nil }

type fixedPrice float64

func (f fixedPrice) FetchPrice(context.Context) (float64, error) { return float64(f), nil }
func (f fixedPrice) Close() error                                { return nil }

func TestMarketMakerCancelReplace(t *testing.T) {
	cfg := testConfig()
	logger := zaptest.NewLogger(t)
	placer := &fakePlacer{}
	mm := NewMarketMaker(cfg, logger, placer, fixedPrice(100), NewLayeredSymmetricQuoting(cfg, logger))
	ctx := context.Background()

	require.NoError(t, mm.UpdateOrders(ctx))
	assert.Len(t, placer.created, 6)
	assert.ElementsMatch(t, []string{"1", "2", "3", "4", "5", "6"}, mm.ActiveOrders())
	assert.Empty(t, placer.canceled)

	require.NoError(t, mm.UpdateOrders(ctx))
	assert.ElementsMatch(t, []string{"1", "2", "3", "4", "5", "6"}, placer.canceled)
	assert.ElementsMatch(t, []string{"7", "8", "9", "10", "11", "12"}, mm.ActiveOrders())

	t.Run("failed placements are not tracked", func(t *testing.T) {
		placer.failOn = "SELL"
		require.NoError(t, mm.UpdateOrders(ctx))
		assert.Len(t, mm.ActiveOrders(), 3)
	})
}

func TestMarketMakerStartStop(t *testing.T) {
	cfg := testConfig()
	logger := zaptest.NewLogger(t)
	placer := &fakePlacer{}
	mm := NewMarketMaker(cfg, logger, placer, fixedPrice(50), NewLayeredSymmetricQuoting(cfg, logger))

	mm.Start(context.Background())
	assert.Eventually(t, func() bool { return len(mm.ActiveOrders()) == 6 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, mm.Stop(ctx))
	assert.Empty(t, mm.ActiveOrders())
	assert.Len(t, placer.canceled, 6)
}

func TestMarketMakerAgainstServer(t *testing.T) {
	ledger := account.NewLedger()
	broker := feed.NewBroker()
	engine := core.NewMatchingEngine(
		core.WithProducts("AAPL"),
		core.WithListener(ledger),
		core.WithListener(broker),
	)

	lis := bufconn.Listen(1024 * 1024)
	srv := server.NewGRPCServer()
	server.RegisterTradingService(srv, server.NewTradingService(engine, ledger, broker))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := api.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
	)
	require.NoError(t, err)

	cfg := testConfig()
	logger := zaptest.NewLogger(t)
	placer := newOrderPlacer(api.NewClient(conn), cfg, logger)
	placer.conn = conn
	defer placer.Close()

	mm := NewMarketMaker(cfg, logger, placer, fixedPrice(100), NewLayeredSymmetricQuoting(cfg, logger))
	ctx := context.Background()

	require.NoError(t, mm.UpdateOrders(ctx))
	tob, err := engine.TopOfBook("AAPL")
	require.NoError(t, err)
	require.Len(t, tob.Bids, 3)
	require.Len(t, tob.Asks, 3)
	assert.Equal(t, dec(99.95), tob.Bids[0].Price.String())
	assert.Equal(t, dec(100.05), tob.Asks[0].Price.String())

	// a taker lifts the best ask; the next cycle skips the filled quote
	_, err = engine.CreateOrder(ctx, core.OrderRequest{
		Product: "AAPL", Side: core.Buy, Price: tob.Asks[0].Price, Quantity: cfg.OrderSize,
		Expiry: core.FillOrKill, Account: "taker",
	})
	require.NoError(t, err)
	assert.Equal(t, -cfg.OrderSize, ledger.QuantityOwned("test-mm", "AAPL"))

	require.NoError(t, mm.UpdateOrders(ctx))
	tob, err = engine.TopOfBook("AAPL")
	require.NoError(t, err)
	assert.Len(t, tob.Bids, 3)
	assert.Len(t, tob.Asks, 3)
	assert.Len(t, mm.ActiveOrders(), 6)
}
