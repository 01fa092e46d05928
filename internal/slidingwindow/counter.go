// Package slidingwindow backs the coordinator's idle-client dispatcher
// (internal/dispatcher): it tracks which client IDs have been
// observed recently so a per-client sample batcher that has gone
// quiet can be torn down instead of leaking forever.
package slidingwindow

import (
	"golang.org/x/exp/maps"
)

// Counter is a sliding window-based counter. Observe records one
// observation of a value; once a value's last occurrence falls out of
// the window, onEvict (if set) is called with it. Counter is not safe
// for concurrent use; see LockedCounter.
type Counter[T comparable] struct {
	window   []T
	head     int
	lifetime int
	current  map[T]int
	evict    func(T)
}

// NewCounter creates a new sliding window-based counter with the
// given size. cardinalityHint sizes the internal map; pass 0 to use a
// reasonable default.
func NewCounter[T comparable](size int, cardinalityHint int, onEvict func(T)) *Counter[T] {
	if size < 1 {
		panic("invalid size")
	}
	if cardinalityHint == 0 {
		cardinalityHint = 256
	}

	return &Counter[T]{
		window:  make([]T, size),
		current: make(map[T]int, cardinalityHint),
		evict:   onEvict,
	}
}

// Get returns the value's count in the window, which may be 0.
func (c *Counter[T]) Get(value T) int {
	return c.current[value]
}

// GetAll returns a copy of every observed value in the window mapped
// to its count.
func (c *Counter[T]) GetAll() map[T]int {
	return maps.Clone(c.current)
}

// Lifetime returns the total number of observations ever made.
func (c *Counter[T]) Lifetime() int {
	return c.lifetime
}

// Observe records one observation of value.
func (c *Counter[T]) Observe(value T) {
	size := len(c.window)
	needEvict := c.lifetime >= size

	if needEvict {
		evictee := c.window[c.head]
		updatedCount := c.current[evictee] - 1

		switch {
		case updatedCount > 0:
			c.current[evictee] = updatedCount
		case updatedCount == 0:
			delete(c.current, evictee)
			if c.evict != nil {
				c.evict(evictee)
			}
		default:
			panic("evictee count was 0")
		}
	}

	c.window[c.head] = value
	c.lifetime++
	c.head++
	if c.head >= size {
		c.head = 0
	}
	c.current[value]++
}
