// Package counter keeps atomic event counts keyed by a closed set of keys.
//
// Each key has two counts: a lifetime count and a secondary count that can be
// reset independently, e.g. at the end of a metrics window.
package counter

import "go.uber.org/atomic"

// Counter counts events for a fixed set of keys. The key set is fixed at
// construction, so reads never miss and the maps are never written after New.
type Counter[K comparable] struct {
	keys      []K
	lifetime  map[K]*atomic.Int64
	secondary map[K]*atomic.Int64
}

// New creates a counter with every key pre-populated at zero.
func New[K comparable](keys ...K) *Counter[K] {
	c := &Counter[K]{
		lifetime:  make(map[K]*atomic.Int64, len(keys)),
		secondary: make(map[K]*atomic.Int64, len(keys)),
	}
	for _, k := range keys {
		if _, dup := c.lifetime[k]; dup {
			continue
		}
		c.keys = append(c.keys, k)
		c.lifetime[k] = atomic.NewInt64(0)
		c.secondary[k] = atomic.NewInt64(0)
	}
	return c
}

// Increment adds one to both views of k.
func (c *Counter[K]) Increment(k K) bool {
	return c.Add(k, 1)
}

// Add adds n to both views of k. It reports false for a key outside the set.
func (c *Counter[K]) Add(k K, n int64) bool {
	l, ok := c.lifetime[k]
	if !ok {
		return false
	}
	l.Add(n)
	c.secondary[k].Add(n)
	return true
}

// Value returns the lifetime count of k.
func (c *Counter[K]) Value(k K) int64 {
	if v, ok := c.lifetime[k]; ok {
		return v.Load()
	}
	return 0
}

// SecondaryValue returns the secondary count of k.
func (c *Counter[K]) SecondaryValue(k K) int64 {
	if v, ok := c.secondary[k]; ok {
		return v.Load()
	}
	return 0
}

// Keys returns the key set in construction order.
func (c *Counter[K]) Keys() []K {
	return append([]K(nil), c.keys...)
}

// Snapshot copies the lifetime view.
func (c *Counter[K]) Snapshot() map[K]int64 {
	return snapshot(c.keys, c.lifetime)
}

// SecondarySnapshot copies the secondary view.
func (c *Counter[K]) SecondarySnapshot() map[K]int64 {
	return snapshot(c.keys, c.secondary)
}

// Reset zeroes both views.
func (c *Counter[K]) Reset() {
	for _, k := range c.keys {
		c.lifetime[k].Store(0)
		c.secondary[k].Store(0)
	}
}

// ResetSecondary zeroes the secondary view only.
func (c *Counter[K]) ResetSecondary() {
	for _, k := range c.keys {
		c.secondary[k].Store(0)
	}
}

func snapshot[K comparable](keys []K, m map[K]*atomic.Int64) map[K]int64 {
	out := make(map[K]int64, len(keys))
	for _, k := range keys {
		out[k] = m[k].Load()
	}
	return out
}
