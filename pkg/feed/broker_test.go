package feed

import (
	"context"
	"testing"
	"time"

	"github.com/erain9/tradesim/pkg/core"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, s *Subscription) core.TopOfBook {
	t.Helper()
	select {
	case tob, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return tob
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
		return core.TopOfBook{}
	}
}

func TestBrokerRoutesByProduct(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	aapl, err := b.Subscribe("AAPL", 4)
	require.NoError(t, err)
	msft, err := b.Subscribe("MSFT", 4)
	require.NoError(t, err)

	b.Publish(core.TopOfBook{Product: "AAPL", Sequence: 1})

	assert.Equal(t, uint64(1), receive(t, aapl).Sequence)
	assert.Len(t, msft.C(), 0)
}

func TestBrokerDropsOldestWhenFull(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	s, err := b.Subscribe("AAPL", 2)
	require.NoError(t, err)

	for seq := uint64(1); seq <= 5; seq++ {
		b.Publish(core.TopOfBook{Product: "AAPL", Sequence: seq})
	}

	assert.Equal(t, uint64(4), receive(t, s).Sequence)
	assert.Equal(t, uint64(5), receive(t, s).Sequence)
	assert.Equal(t, uint64(3), s.Dropped())
}

func TestSubscriptionClose(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	s, err := b.Subscribe("AAPL", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers("AAPL"))

	s.Close()
	s.Close()
	assert.Equal(t, 0, b.Subscribers("AAPL"))

	_, ok := <-s.C()
	assert.False(t, ok)

	// publishing after unsubscribe must not panic
	b.Publish(core.TopOfBook{Product: "AAPL"})
}

func TestBrokerClose(t *testing.T) {
	b := NewBroker()
	s, err := b.Subscribe("AAPL", 1)
	require.NoError(t, err)

	b.Close()
	_, ok := <-s.C()
	assert.False(t, ok)

	_, err = b.Subscribe("AAPL", 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBrokerReceivesEngineUpdates(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	s, err := b.Subscribe("AAPL", 8)
	require.NoError(t, err)

	e := core.NewMatchingEngine(core.WithProducts("AAPL"), core.WithListener(b))
	ctx := context.Background()

	state, err := e.CreateOrder(ctx, core.OrderRequest{
		Product: "AAPL", Side: core.Buy, Price: fpdecimal.FromInt(100), Quantity: 3, Expiry: core.GoodTillCancel,
	})
	require.NoError(t, err)

	tob := receive(t, s)
	require.Len(t, tob.Bids, 1)
	assert.Equal(t, int64(3), tob.Bids[0].Quantity)

	_, ok := e.CancelOrder(ctx, state.Order.ID)
	require.True(t, ok)

	tob = receive(t, s)
	assert.Empty(t, tob.Bids)
	assert.Equal(t, uint64(2), tob.Sequence)
}
