package core

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TimestampProvider supplies the time stamped on matches
type TimestampProvider interface {
	Timestamp() int64
}

// IDProvider generates order identifiers
type IDProvider interface {
	NextID() string
}

// MonotonicClock returns wall-clock nanoseconds, never repeating or going backwards
type MonotonicClock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewMonotonicClock creates a clock backed by time.Now
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{now: time.Now}
}

// Timestamp implements TimestampProvider
func (c *MonotonicClock) Timestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().UnixNano()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}

// UUIDProvider hands out random v4 UUIDs
type UUIDProvider struct{}

// NextID implements IDProvider
func (UUIDProvider) NextID() string {
	return uuid.NewString()
}

// SequenceIDProvider hands out "1", "2", ... and is safe for concurrent use
type SequenceIDProvider struct {
	next atomic.Int64
}

// NextID implements IDProvider
func (p *SequenceIDProvider) NextID() string {
	return strconv.FormatInt(p.next.Add(1), 10)
}

// FixedClock always returns the same timestamp
type FixedClock int64

// Timestamp implements TimestampProvider
func (c FixedClock) Timestamp() int64 {
	return int64(c)
}
