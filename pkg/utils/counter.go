package utils

import "sync/atomic"

// Counter is an atomic int64 counter used for statistics.
type Counter struct {
	count int64
}

// NewCounter creates a Counter starting at initialCount.
func NewCounter(initialCount int64) *Counter {
	return &Counter{count: initialCount}
}

// Increment adds one and returns the new value.
func (c *Counter) Increment() int64 {
	return atomic.AddInt64(&c.count, 1)
}

// Decrement subtracts one and returns the new value.
func (c *Counter) Decrement() int64 {
	return atomic.AddInt64(&c.count, -1)
}

// Value returns the current value.
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.count)
}
