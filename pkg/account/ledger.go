// Package account tracks how much of each product every account holds.
package account

import (
	"context"
	"sync"

	"github.com/erain9/tradesim/pkg/core"
	"github.com/erain9/tradesim/pkg/logging"
)

type key struct {
	account string
	product string
}

// Ledger applies executions to per-account positions. Holdings are not
// enforced by the engine; clients consult QuantityOwned before selling.
type Ledger struct {
	mu       sync.RWMutex
	holdings map[key]int64
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{holdings: make(map[key]int64)}
}

// Seed loads starting positions keyed account -> product -> quantity
func (l *Ledger) Seed(initial map[string]map[string]int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for account, products := range initial {
		for product, qty := range products {
			l.holdings[key{account, product}] = qty
		}
	}
}

// Credit adds delta (which may be negative) to a position
func (l *Ledger) Credit(account, product string, delta int64) {
	if account == "" || delta == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holdings[key{account, product}] += delta
}

// QuantityOwned returns the position of account in product
func (l *Ledger) QuantityOwned(account, product string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.holdings[key{account, product}]
}

// OnExecution moves the traded quantity from seller to buyer
func (l *Ledger) OnExecution(ctx context.Context, exec core.Execution) {
	buyer, seller := exec.Buyer(), exec.Seller()
	if buyer == seller {
		return
	}
	l.Credit(buyer, exec.Product, exec.Match.Quantity)
	l.Credit(seller, exec.Product, -exec.Match.Quantity)

	logger := logging.FromContext(ctx)
	logger.Debug().
		Str("product", exec.Product).
		Str("buyer", buyer).
		Str("seller", seller).
		Int64("quantity", exec.Match.Quantity).
		Msg("Holdings updated")
}

// OnTopOfBook implements core.Listener
func (l *Ledger) OnTopOfBook(context.Context, core.TopOfBook) {}
