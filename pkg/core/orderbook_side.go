package core

import (
	"fmt"

	"github.com/nikolaydubina/fpdecimal"
)

// LevelSummary aggregates one price level for depth-of-book reporting
type LevelSummary struct {
	Price      fpdecimal.Decimal `json:"price"`
	Quantity   int64             `json:"quantity"`
	OrderCount int               `json:"orderCount"`
}

// RestingOrder is a read-only view of an order sitting in the book
type RestingOrder struct {
	ID       string
	Price    fpdecimal.Decimal
	Quantity int64
	Filled   int64
}

// Remaining returns the open quantity
func (o RestingOrder) Remaining() int64 {
	return o.Quantity - o.Filled
}

// OrderBookSide holds the bid or the ask side of one product's book.
// Levels are kept best first according to the comparator. It is not safe
// for concurrent use; the engine serialises access per product.
type OrderBookSide struct {
	side   Side
	cmp    PriceComparator
	clock  TimestampProvider
	arena  *orderArena
	levels []*PriceLevel
	index  map[string]handle
}

// NewOrderBookSide creates an empty side ordered by cmp
func NewOrderBookSide(side Side, cmp PriceComparator, clock TimestampProvider) *OrderBookSide {
	if cmp == nil {
		cmp = ComparatorFor(side)
	}
	if clock == nil {
		clock = NewMonotonicClock()
	}
	return &OrderBookSide{
		side:  side,
		cmp:   cmp,
		clock: clock,
		arena: newOrderArena(),
		index: make(map[string]handle),
	}
}

// Side returns which side of the book this is
func (s *OrderBookSide) Side() Side {
	return s.side
}

// AddOrder rests an order, merging it into the level at its exact price or
// opening a new level at the sorted position.
func (s *OrderBookSide) AddOrder(id string, quantity, filled int64, price fpdecimal.Decimal) error {
	if _, exists := s.index[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, id)
	}
	if quantity <= 0 || filled < 0 || filled >= quantity {
		return fmt.Errorf("%w: quantity %d filled %d", ErrInvalidQuantity, quantity, filled)
	}

	h := s.arena.alloc(id, quantity, filled, price)
	s.index[id] = h

	for i, level := range s.levels {
		c := s.cmp(level.price, price)
		if c == 0 {
			level.Append(h)
			return nil
		}
		if c > 0 {
			level := newPriceLevel(s.arena, price)
			level.Append(h)
			s.levels = append(s.levels, nil)
			copy(s.levels[i+1:], s.levels[i:])
			s.levels[i] = level
			return nil
		}
	}

	level := newPriceLevel(s.arena, price)
	level.Append(h)
	s.levels = append(s.levels, level)
	return nil
}

// HasOrder reports whether the id is resting on this side
func (s *OrderBookSide) HasOrder(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Order returns a view of a resting order
func (s *OrderBookSide) Order(id string) (RestingOrder, bool) {
	h, ok := s.index[id]
	if !ok {
		return RestingOrder{}, false
	}
	n := s.arena.get(h)
	return RestingOrder{ID: n.id, Price: n.price, Quantity: n.quantity, Filled: n.filled}, true
}

// RemoveOrder unlinks a resting order and drops its level once empty.
// It returns false, leaving the side untouched, when the id is unknown.
func (s *OrderBookSide) RemoveOrder(id string) bool {
	h, ok := s.index[id]
	if !ok {
		return false
	}

	i := s.levelIndex(s.arena.get(h).price)
	if i < 0 {
		return false
	}

	delete(s.index, id)
	s.unlink(i, h)
	return true
}

// MatchOrder trades an aggressor against this side, best level first and in
// arrival order within a level, never crossing limit. It returns the quantity
// traded and one Match per resting order touched.
func (s *OrderBookSide) MatchOrder(aggressorID string, quantity int64, limit fpdecimal.Decimal) (int64, []Match) {
	var (
		traded  int64
		matches []Match
	)

	for len(s.levels) > 0 && traded < quantity {
		level := s.levels[0]
		if s.cmp(level.price, limit) > 0 {
			break
		}

		for h := level.head; h != nilHandle && traded < quantity; {
			n := s.arena.get(h)
			next := n.next

			qty := min(quantity-traded, n.remaining())
			n.filled += qty
			traded += qty
			matches = append(matches, Match{
				AggressorOrderID: aggressorID,
				RestingOrderID:   n.id,
				Quantity:         qty,
				Price:            n.price,
				Timestamp:        s.clock.Timestamp(),
			})

			if n.remaining() == 0 {
				delete(s.index, n.id)
				s.unlink(0, h)
			}
			h = next
		}

		// level still present means the aggressor is done
		if len(s.levels) > 0 && s.levels[0] == level {
			break
		}
	}

	return traded, matches
}

// MatchMustFillOrder trades the full quantity or nothing. The feasibility
// pass does not mutate; when it fails the side is left exactly as it was.
func (s *OrderBookSide) MatchMustFillOrder(aggressorID string, quantity int64, limit fpdecimal.Decimal) ([]Match, bool) {
	if s.fillable(quantity, limit) < quantity {
		return nil, false
	}

	_, matches := s.MatchOrder(aggressorID, quantity, limit)
	return matches, true
}

// fillable sums open quantity at eligible levels, stopping once target is reached
func (s *OrderBookSide) fillable(target int64, limit fpdecimal.Decimal) int64 {
	var total int64
	for _, level := range s.levels {
		if s.cmp(level.price, limit) > 0 {
			break
		}
		for h := level.head; h != nilHandle; h = s.arena.get(h).next {
			total += s.arena.get(h).remaining()
			if total >= target {
				return total
			}
		}
	}
	return total
}

// FiveBestPricesAndQuantities reports up to five best levels with their total open quantity
func (s *OrderBookSide) FiveBestPricesAndQuantities() []LevelSummary {
	return s.Depth(TopOfBookDepth)
}

// Depth reports up to n best levels
func (s *OrderBookSide) Depth(n int) []LevelSummary {
	if n > len(s.levels) {
		n = len(s.levels)
	}
	if n < 0 {
		n = 0
	}

	out := make([]LevelSummary, 0, n)
	for _, level := range s.levels[:n] {
		out = append(out, LevelSummary{
			Price:      level.price,
			Quantity:   level.TotalRemainingQuantity(),
			OrderCount: level.Len(),
		})
	}
	return out
}

// BestPrice returns the price of the best level
func (s *OrderBookSide) BestPrice() (fpdecimal.Decimal, bool) {
	if len(s.levels) == 0 {
		return fpdecimal.Zero, false
	}
	return s.levels[0].price, true
}

// Len returns the number of resting orders
func (s *OrderBookSide) Len() int {
	return len(s.index)
}

// LevelCount returns the number of price levels
func (s *OrderBookSide) LevelCount() int {
	return len(s.levels)
}

func (s *OrderBookSide) levelIndex(price fpdecimal.Decimal) int {
	for i, level := range s.levels {
		if level.price.Equal(price) {
			return i
		}
	}
	return -1
}

// unlink removes h from levels[i], excises the level if it emptied and frees the slot
func (s *OrderBookSide) unlink(i int, h handle) {
	level := s.levels[i]
	level.Remove(h)
	if level.Empty() {
		copy(s.levels[i:], s.levels[i+1:])
		s.levels[len(s.levels)-1] = nil
		s.levels = s.levels[:len(s.levels)-1]
	}
	s.arena.release(h)
}
