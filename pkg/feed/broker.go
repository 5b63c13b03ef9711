// Package feed fans top-of-book snapshots out to subscribers.
package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/erain9/tradesim/pkg/core"
)

// DefaultBuffer is the per-subscription queue length used when none is given
const DefaultBuffer = 16

// ErrClosed is returned when subscribing to a closed broker
var ErrClosed = errors.New("feed closed")

// Broker is an in-process publish/subscribe hub keyed by product.
// It implements core.Listener so it can be registered on the engine directly.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription receives snapshots of one product until closed
type Subscription struct {
	broker  *Broker
	product string

	mu      sync.Mutex
	ch      chan core.TopOfBook
	closed  bool
	dropped atomic.Uint64
}

// Subscribe registers interest in product. When the subscriber falls behind
// the oldest queued snapshot is discarded so the newest is always delivered.
func (b *Broker) Subscribe(product string, buffer int) (*Subscription, error) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	s := &Subscription{
		broker:  b,
		product: product,
		ch:      make(chan core.TopOfBook, buffer),
	}
	if b.subs[product] == nil {
		b.subs[product] = make(map[*Subscription]struct{})
	}
	b.subs[product][s] = struct{}{}
	return s, nil
}

// Publish delivers tob to every subscriber of its product without blocking
func (b *Broker) Publish(tob core.TopOfBook) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs[tob.Product] {
		s.offer(tob)
	}
}

// Subscribers returns the number of open subscriptions for product
func (b *Broker) Subscribers(product string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[product])
}

// Close ends every subscription; later Subscribe calls fail
func (b *Broker) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]map[*Subscription]struct{})
	b.closed = true
	b.mu.Unlock()

	for _, set := range subs {
		for s := range set {
			s.shut()
		}
	}
}

// OnExecution implements core.Listener
func (b *Broker) OnExecution(context.Context, core.Execution) {}

// OnTopOfBook implements core.Listener
func (b *Broker) OnTopOfBook(_ context.Context, tob core.TopOfBook) {
	b.Publish(tob)
}

// C returns the channel snapshots arrive on; it is closed on unsubscribe
func (s *Subscription) C() <-chan core.TopOfBook {
	return s.ch
}

// Product returns the subscribed symbol
func (s *Subscription) Product() string {
	return s.product
}

// Dropped counts snapshots discarded because the subscriber was slow
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.broker.mu.Lock()
	if set, ok := s.broker.subs[s.product]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(s.broker.subs, s.product)
		}
	}
	s.broker.mu.Unlock()

	s.shut()
}

func (s *Subscription) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscription) offer(tob core.TopOfBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- tob:
		return
	default:
	}

	// full: make room by discarding the oldest snapshot
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- tob:
	default:
		s.dropped.Add(1)
	}
}
