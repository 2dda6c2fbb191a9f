// Package cache holds a small in-process memo used to keep tier
// definitions off the hot lookup path. Entries share one lifetime,
// chosen at construction; expiry is lazy on read, so there is no
// background sweeper to manage.
package cache

import (
	"sync"
	"time"
)

type memoEntry[V any] struct {
	value    V
	deadline int64 // unix nanos, 0 means the entry never expires
}

// Memo memoizes values under comparable keys for a fixed lifetime.
type Memo[K comparable, V any] struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[K]memoEntry[V]
}

// New builds a Memo whose entries live for ttl. A non-positive ttl
// keeps entries until they are evicted.
func New[K comparable, V any](ttl time.Duration) *Memo[K, V] {
	return &Memo[K, V]{
		ttl:     ttl,
		entries: make(map[K]memoEntry[V]),
	}
}

// Get returns the memoized value for key. Expired entries count as
// misses and are dropped on the way out.
func (m *Memo[K, V]) Get(key K) (V, bool) {
	var zero V
	if m == nil {
		return zero, false
	}
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if entry.deadline != 0 && time.Now().UnixNano() > entry.deadline {
		m.Evict(key)
		return zero, false
	}
	return entry.value, true
}

// Put memoizes value under key, restarting its lifetime.
func (m *Memo[K, V]) Put(key K, value V) {
	if m == nil {
		return
	}
	var deadline int64
	if m.ttl > 0 {
		deadline = time.Now().Add(m.ttl).UnixNano()
	}
	m.mu.Lock()
	m.entries[key] = memoEntry[V]{value: value, deadline: deadline}
	m.mu.Unlock()
}

// Evict drops the entry for key, if any.
func (m *Memo[K, V]) Evict(key K) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}
