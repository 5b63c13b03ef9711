package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/nikolaydubina/fpdecimal"
)

// seedAsks rests 100 sell orders between 100.0 and 109.9
func seedAsks(b *testing.B, e *MatchingEngine, product string) {
	b.Helper()
	for i := 0; i < 100; i++ {
		_, err := e.CreateOrder(context.Background(), OrderRequest{
			Product:  product,
			Side:     Sell,
			Price:    fpdecimal.FromFloat(100.0 + float64(i)*0.1),
			Quantity: int64(1 + i%5),
			Expiry:   GoodTillCancel,
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkAggressiveOrder measures crossing orders that take liquidity and get replaced
func BenchmarkAggressiveOrder(b *testing.B) {
	e := NewMatchingEngine(WithProducts("BENCH"), WithIDProvider(&SequenceIDProvider{}))
	seedAsks(b, e, "BENCH")
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.CreateOrder(ctx, OrderRequest{
			Product: "BENCH", Side: Buy, Price: fpdecimal.FromInt(110), Quantity: 3, Expiry: GoodTillCancel,
		})
		// put the liquidity back so the book does not drain
		_, _ = e.CreateOrder(ctx, OrderRequest{
			Product: "BENCH", Side: Sell, Price: fpdecimal.FromFloat(100.0 + float64(i%100)*0.1), Quantity: 3, Expiry: GoodTillCancel,
		})
	}
}

// BenchmarkPassiveOrder measures resting orders that never cross
func BenchmarkPassiveOrder(b *testing.B) {
	e := NewMatchingEngine(WithProducts("BENCH"), WithIDProvider(&SequenceIDProvider{}))
	seedAsks(b, e, "BENCH")
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.CreateOrder(ctx, OrderRequest{
			Product: "BENCH", Side: Buy, Price: fpdecimal.FromFloat(90.0 + float64(i%50)*0.1), Quantity: 1, Expiry: GoodTillCancel,
		})
	}
}

// BenchmarkFillOrKillRejected measures the read-only feasibility pass
func BenchmarkFillOrKillRejected(b *testing.B) {
	e := NewMatchingEngine(WithProducts("BENCH"), WithIDProvider(&SequenceIDProvider{}))
	seedAsks(b, e, "BENCH")
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.CreateOrder(ctx, OrderRequest{
			Product: "BENCH", Side: Buy, Price: fpdecimal.FromInt(200), Quantity: 1_000_000, Expiry: FillOrKill,
		})
	}
}

// BenchmarkCancel measures create plus cancel of a resting order
func BenchmarkCancel(b *testing.B) {
	for _, levels := range []int{10, 1000} {
		b.Run(fmt.Sprintf("levels=%d", levels), func(b *testing.B) {
			e := NewMatchingEngine(WithProducts("BENCH"), WithIDProvider(&SequenceIDProvider{}))
			ctx := context.Background()
			for i := 0; i < levels; i++ {
				_, _ = e.CreateOrder(ctx, OrderRequest{
					Product: "BENCH", Side: Buy, Price: fpdecimal.FromInt(1000 - i), Quantity: 1, Expiry: GoodTillCancel,
				})
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				state, _ := e.CreateOrder(ctx, OrderRequest{
					Product: "BENCH", Side: Buy, Price: fpdecimal.FromInt(1000 - i%levels), Quantity: 1, Expiry: GoodTillCancel,
				})
				e.CancelOrder(ctx, state.Order.ID)
			}
		})
	}
}
