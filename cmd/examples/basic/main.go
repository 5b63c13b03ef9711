// Command basic walks through the matching engine in-process: a resting
// sell, a partial fill, a rejected fill-or-kill and a cancel.
package main

import (
	"context"
	"fmt"

	"github.com/erain9/tradesim/pkg/core"
	"github.com/nikolaydubina/fpdecimal"
)

func main() {
	ctx := context.Background()
	engine := core.NewMatchingEngine(
		core.WithProducts("AAPL"),
		core.WithIDProvider(&core.SequenceIDProvider{}),
		core.WithListener(core.ListenerFuncs{
			Execution: func(_ context.Context, exec core.Execution) {
				fmt.Printf("  trade: %d @ %s (buyer=%s seller=%s)\n",
					exec.Match.Quantity, exec.Match.Price, exec.Buyer(), exec.Seller())
			},
		}),
	)

	submit := func(side core.Side, qty int64, price float64, expiry core.Expiry, acct string) core.OrderState {
		state, err := engine.CreateOrder(ctx, core.OrderRequest{
			Product:  "AAPL",
			Side:     side,
			Price:    fpdecimal.FromFloat(price),
			Quantity: qty,
			Expiry:   expiry,
			Account:  acct,
		})
		if err != nil {
			panic(err)
		}
		fmt.Printf("%s %d @ %.2f %s -> order %s %s (filled %d)\n",
			side, qty, price, expiry, state.Order.ID, state.Status, state.Order.Filled)
		return state
	}

	sell := submit(core.Sell, 10, 10.0, core.GoodTillCancel, "alice")
	submit(core.Buy, 5, 10.0, core.GoodTillCancel, "bob")
	submit(core.Buy, 6, 10.0, core.FillOrKill, "carol")

	if state, ok := engine.CancelOrder(ctx, sell.Order.ID); ok {
		fmt.Printf("canceled order %s with %d unfilled\n", state.Order.ID, state.Order.Remaining())
	}

	tob, _ := engine.TopOfBook("AAPL")
	fmt.Printf("book after: %d bid levels, %d ask levels\n", len(tob.Bids), len(tob.Asks))
}
