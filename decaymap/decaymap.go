// Package decaymap implements a generic map whose entries expire after a
// per-entry deadline. Expired entries are evicted lazily on read and in bulk
// via Cleanup.
package decaymap

import (
	"sync"
	"time"
)

// Zilch returns the zero value of any type.
func Zilch[T any]() T { return *new(T) }

type entry[V any] struct {
	value  V
	expiry time.Time
}

// Impl is a thread-safe expiring map.
type Impl[K comparable, V any] struct {
	data map[K]entry[V]
	lock sync.RWMutex
}

func New[K comparable, V any]() *Impl[K, V] {
	return &Impl[K, V]{
		data: map[K]entry[V]{},
	}
}

// Get fetches a value if it exists and has not expired. Expired values are
// deleted on read.
func (m *Impl[K, V]) Get(key K) (V, bool) {
	m.lock.RLock()
	e, ok := m.data[key]
	m.lock.RUnlock()

	if !ok {
		return Zilch[V](), false
	}

	if time.Now().After(e.expiry) {
		m.lock.Lock()
		// Another writer may have refreshed the entry between the
		// read unlock and here, so re-check the deadline.
		if e2, ok := m.data[key]; ok && time.Now().After(e2.expiry) {
			delete(m.data, key)
		}
		m.lock.Unlock()
		return Zilch[V](), false
	}

	return e.value, true
}

// Set stores a value that expires after ttl.
func (m *Impl[K, V]) Set(key K, value V, ttl time.Duration) {
	m.SetUntil(key, value, time.Now().Add(ttl))
}

// SetUntil stores a value that expires at an absolute deadline.
func (m *Impl[K, V]) SetUntil(key K, value V, deadline time.Time) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.data[key] = entry[V]{
		value:  value,
		expiry: deadline,
	}
}

// Deadline returns the expiry deadline of a live entry.
func (m *Impl[K, V]) Deadline(key K) (time.Time, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	e, ok := m.data[key]
	if !ok || time.Now().After(e.expiry) {
		return time.Time{}, false
	}
	return e.expiry, true
}

// Delete removes a key and reports whether it was present.
func (m *Impl[K, V]) Delete(key K) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	_, ok := m.data[key]
	if ok {
		delete(m.data, key)
	}
	return ok
}

// Len returns the number of entries including ones that have expired but not
// yet been evicted.
func (m *Impl[K, V]) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.data)
}

// Cleanup evicts every expired entry.
func (m *Impl[K, V]) Cleanup() {
	now := time.Now()

	m.lock.Lock()
	defer m.lock.Unlock()

	for key, e := range m.data {
		if now.After(e.expiry) {
			delete(m.data, key)
		}
	}
}
