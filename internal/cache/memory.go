package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is an in-process Cache bounded by capacity. Inserting a new key into
// a full cache evicts the oldest inserted entry (FIFO, not LRU). Entries expire
// ttl after insertion and are removed lazily when read; there is no
// background sweeper.
type Memory[V any] struct {
	ttl      time.Duration
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is the oldest insertion
}

type memoryEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

var _ Cache[int] = (*Memory[int])(nil)

// NewMemory returns a Memory cache. Non-positive ttl or capacity fall back to
// DefaultTTL and DefaultCapacity.
func NewMemory[V any](ttl time.Duration, capacity int) *Memory[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory[V]{
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the value stored at key if it has not expired.
func (m *Memory[V]) Get(_ context.Context, key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	el, ok := m.entries[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*memoryEntry[V])
	if !m.now().Before(e.expiresAt) {
		m.remove(el)
		return zero, false
	}
	return e.value, true
}

// Set stores value at key with a fresh expiry. Re-setting a key counts as a
// new insertion for eviction order.
func (m *Memory[V]) Set(_ context.Context, key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		m.remove(el)
	}
	for m.order.Len() >= m.capacity {
		m.remove(m.order.Front())
	}

	m.entries[key] = m.order.PushBack(&memoryEntry[V]{
		key:       key,
		value:     value,
		expiresAt: m.now().Add(m.ttl),
	})
}

// Delete removes key.
func (m *Memory[V]) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		m.remove(el)
	}
}

// Clear removes every entry.
func (m *Memory[V]) Clear(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*list.Element, m.capacity)
	m.order.Init()
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (m *Memory[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// remove deletes el. The caller must hold m.mu.
func (m *Memory[V]) remove(el *list.Element) {
	e := el.Value.(*memoryEntry[V])
	delete(m.entries, e.key)
	m.order.Remove(el)
}
