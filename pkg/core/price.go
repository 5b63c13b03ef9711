package core

import "github.com/nikolaydubina/fpdecimal"

// PriceComparator orders two prices for one side of the book.
// It returns a negative value when a is better than b, zero when they are
// equal and a positive value when a is worse than b.
type PriceComparator func(a, b fpdecimal.Decimal) int

// AskComparator ranks lower prices first
func AskComparator(a, b fpdecimal.Decimal) int {
	switch {
	case a.LessThan(b):
		return -1
	case a.GreaterThan(b):
		return 1
	default:
		return 0
	}
}

// BidComparator ranks higher prices first
func BidComparator(a, b fpdecimal.Decimal) int {
	return AskComparator(b, a)
}

// ComparatorFor returns the comparator used by the given side of a book
func ComparatorFor(side Side) PriceComparator {
	if side == Buy {
		return BidComparator
	}
	return AskComparator
}
