package remote

import (
	"sync"
	"time"
)

// TTLCache holds a single value with an expiry. Both the bearer token and
// the batch-size limit live in one of these; refresh on a racing miss just
// costs a redundant remote call, so no coordination beyond the mutex is
// needed.
type TTLCache[T any] struct {
	mu      sync.Mutex
	value   T
	expires time.Time
	set     bool
	now     func() time.Time
}

// NewTTLCache returns an empty cache using the real clock.
func NewTTLCache[T any]() *TTLCache[T] {
	return &TTLCache[T]{now: time.Now}
}

// Get returns the cached value and whether it is still live.
func (c *TTLCache[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set || c.now().After(c.expires) {
		var zero T
		return zero, false
	}
	return c.value, true
}

// Set stores value for ttl. A non-positive ttl stores an already-expired
// value, which Get treats as a miss.
func (c *TTLCache[T]) Set(value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.expires = c.now().Add(ttl)
	c.set = true
}

// Clear empties the cache.
func (c *TTLCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.set = false
}
