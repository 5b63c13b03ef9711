package account

import (
	"bytes"
	"context"
	"testing"

	"github.com/erain9/tradesim/pkg/core"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerSeedAndCredit(t *testing.T) {
	l := NewLedger()
	l.Seed(map[string]map[string]int64{
		"alice": {"AAPL": 100},
		"bob":   {"AAPL": 5, "MSFT": 7},
	})

	assert.Equal(t, int64(100), l.QuantityOwned("alice", "AAPL"))
	assert.Equal(t, int64(7), l.QuantityOwned("bob", "MSFT"))
	assert.Zero(t, l.QuantityOwned("carol", "AAPL"))

	l.Credit("alice", "AAPL", -30)
	assert.Equal(t, int64(70), l.QuantityOwned("alice", "AAPL"))

	l.Credit("", "AAPL", 10)
	assert.Zero(t, l.QuantityOwned("", "AAPL"))
}

func TestLedgerFollowsEngine(t *testing.T) {
	ledger := NewLedger()
	ledger.Seed(map[string]map[string]int64{"alice": {"AAPL": 10}})

	e := core.NewMatchingEngine(core.WithProducts("AAPL"), core.WithListener(ledger))
	ctx := context.Background()

	_, err := e.CreateOrder(ctx, core.OrderRequest{
		Product: "AAPL", Side: core.Sell, Price: fpdecimal.FromInt(100), Quantity: 6,
		Expiry: core.GoodTillCancel, Account: "alice",
	})
	require.NoError(t, err)

	_, err = e.CreateOrder(ctx, core.OrderRequest{
		Product: "AAPL", Side: core.Buy, Price: fpdecimal.FromInt(100), Quantity: 4,
		Expiry: core.GoodTillCancel, Account: "bob",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(6), ledger.QuantityOwned("alice", "AAPL"))
	assert.Equal(t, int64(4), ledger.QuantityOwned("bob", "AAPL"))
}

func TestLedgerSelfTradeIsNeutral(t *testing.T) {
	l := NewLedger()
	l.OnExecution(context.Background(), core.Execution{
		Product:          "AAPL",
		AggressorSide:    core.Buy,
		AggressorAccount: "alice",
		RestingAccount:   "alice",
		Match:            core.Match{Quantity: 3},
	})
	assert.Zero(t, l.QuantityOwned("alice", "AAPL"))
}

func TestLedgerLogsHoldingsUpdate(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	ctx := logger.WithContext(context.Background())

	ledger := NewLedger()
	ledger.OnExecution(ctx, core.Execution{
		Product:          "AAPL",
		AggressorSide:    core.Buy,
		AggressorAccount: "bob",
		RestingAccount:   "alice",
		Match:            core.Match{Quantity: 3, Price: fpdecimal.FromInt(100)},
	})

	assert.Equal(t, int64(3), ledger.QuantityOwned("bob", "AAPL"))
	assert.Equal(t, int64(-3), ledger.QuantityOwned("alice", "AAPL"))
	assert.Contains(t, buf.String(), `"message":"Holdings updated"`)
	assert.Contains(t, buf.String(), `"buyer":"bob"`)
}
