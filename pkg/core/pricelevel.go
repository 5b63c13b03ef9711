package core

import "github.com/nikolaydubina/fpdecimal"

// handle addresses a resting order inside an orderArena
type handle int32

const nilHandle handle = -1

// orderNode is one resting order. prev/next link it to its neighbours at the
// same price; the owning PriceLevel manages the links.
type orderNode struct {
	id       string
	quantity int64
	filled   int64
	price    fpdecimal.Decimal
	prev     handle
	next     handle
}

func (n *orderNode) remaining() int64 {
	return n.quantity - n.filled
}

// orderArena stores nodes in a slice and recycles freed slots
type orderArena struct {
	nodes []orderNode
	free  []handle
}

func newOrderArena() *orderArena {
	return &orderArena{}
}

func (a *orderArena) alloc(id string, quantity, filled int64, price fpdecimal.Decimal) handle {
	n := orderNode{
		id:       id,
		quantity: quantity,
		filled:   filled,
		price:    price,
		prev:     nilHandle,
		next:     nilHandle,
	}

	if last := len(a.free) - 1; last >= 0 {
		h := a.free[last]
		a.free = a.free[:last]
		a.nodes[h] = n
		return h
	}

	a.nodes = append(a.nodes, n)
	return handle(len(a.nodes) - 1)
}

func (a *orderArena) release(h handle) {
	a.nodes[h] = orderNode{prev: nilHandle, next: nilHandle}
	a.free = append(a.free, h)
}

func (a *orderArena) get(h handle) *orderNode {
	return &a.nodes[h]
}

// PriceLevel is a FIFO queue of resting orders sharing one price
type PriceLevel struct {
	arena *orderArena
	price fpdecimal.Decimal
	head  handle
	tail  handle
	count int
}

func newPriceLevel(arena *orderArena, price fpdecimal.Decimal) *PriceLevel {
	return &PriceLevel{
		arena: arena,
		price: price,
		head:  nilHandle,
		tail:  nilHandle,
	}
}

// Price returns the level price
func (l *PriceLevel) Price() fpdecimal.Decimal {
	return l.price
}

// Len returns the number of orders queued at this price
func (l *PriceLevel) Len() int {
	return l.count
}

// Empty reports whether the chain has no orders left
func (l *PriceLevel) Empty() bool {
	return l.head == nilHandle
}

// Append adds the node at the tail, behind every order already queued
func (l *PriceLevel) Append(h handle) {
	n := l.arena.get(h)
	n.prev = l.tail
	n.next = nilHandle

	if l.tail == nilHandle {
		l.head = h
	} else {
		l.arena.get(l.tail).next = h
	}
	l.tail = h
	l.count++
}

// Remove unlinks the node. The caller must excise the level once it is empty.
func (l *PriceLevel) Remove(h handle) {
	n := l.arena.get(h)

	if n.prev == nilHandle {
		l.head = n.next
	} else {
		l.arena.get(n.prev).next = n.next
	}

	if n.next == nilHandle {
		l.tail = n.prev
	} else {
		l.arena.get(n.next).prev = n.prev
	}

	n.prev, n.next = nilHandle, nilHandle
	l.count--
}

// TotalRemainingQuantity sums the open quantity of every order at this price
func (l *PriceLevel) TotalRemainingQuantity() int64 {
	var total int64
	for h := l.head; h != nilHandle; h = l.arena.get(h).next {
		total += l.arena.get(h).remaining()
	}
	return total
}

// orderIDs lists the queued ids in arrival order
func (l *PriceLevel) orderIDs() []string {
	ids := make([]string, 0, l.count)
	for h := l.head; h != nilHandle; h = l.arena.get(h).next {
		ids = append(ids, l.arena.get(h).id)
	}
	return ids
}
