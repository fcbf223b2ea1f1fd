// Package cache provides the expiring key-value stores used to memoize
// upstream discount lookups.
package cache

import (
	"context"
	"time"
)

// Default sizing for lookup caches.
const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 2000
)

// Cache is an expiring key-value store. Implementations must tolerate
// concurrent Get and Set; check-then-set races are acceptable.
type Cache[V any] interface {
	// Get returns the value stored at key. Expired entries are a miss.
	Get(ctx context.Context, key string) (V, bool)
	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key string, value V)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string)
	// Clear removes every entry.
	Clear(ctx context.Context)
}

// Nop is a Cache that never stores anything.
type Nop[V any] struct{}

var _ Cache[int] = Nop[int]{}

// Get always misses.
func (Nop[V]) Get(context.Context, string) (V, bool) {
	var zero V
	return zero, false
}

// Set discards value.
func (Nop[V]) Set(context.Context, string, V) {}

// Delete does nothing.
func (Nop[V]) Delete(context.Context, string) {}

// Clear does nothing.
func (Nop[V]) Clear(context.Context) {}
