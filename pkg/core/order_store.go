package core

import (
	"fmt"
	"sync"
)

// OrderStore remembers which product every order id belongs to, so cancels
// and lookups reach the right book without scanning all products.
type OrderStore struct {
	mu       sync.RWMutex
	products map[string]string
}

// NewOrderStore creates an empty store
func NewOrderStore() *OrderStore {
	return &OrderStore{products: make(map[string]string)}
}

// AddOrderIDToProduct binds orderID to productID. Re-binding to the same
// product is a no-op; binding to a different product is an error.
func (s *OrderStore) AddOrderIDToProduct(orderID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.products[orderID]; ok {
		if current != productID {
			return fmt.Errorf("%w: order %s is on %s, not %s", ErrOrderProductConflict, orderID, current, productID)
		}
		return nil
	}
	s.products[orderID] = productID
	return nil
}

// HasOrder reports whether the id has been bound
func (s *OrderStore) HasOrder(orderID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.products[orderID]
	return ok
}

// ProductID returns the product bound to orderID
func (s *OrderStore) ProductID(orderID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	productID, ok := s.products[orderID]
	return productID, ok
}

// Len returns the number of bound ids
func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}
