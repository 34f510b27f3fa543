// Package cache holds the short-lived snapshot store.
//
// Expired entries are kept until replaced so the service can fall back to
// stale data when a fresh upstream fetch fails. Off-the-shelf TTL caches
// evict on expiry, which would make that degraded mode impossible.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLStore is a mutex-protected key/value store with per-entry expiry.
// Values are treated as immutable once stored; Get hands back the same
// reference to any number of concurrent readers. The lock is held only for
// map access, never across I/O.
type TTLStore[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	now     func() time.Time
}

// NewTTLStore creates an empty store.
func NewTTLStore[V any]() *TTLStore[V] {
	return &TTLStore[V]{
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// Get returns the value for key. fresh reports whether the entry is within
// its TTL; ok reports whether any entry exists at all. Callers that receive
// (v, false, true) hold stale data and must flag it as such downstream.
func (s *TTLStore[V]) Get(key string) (v V, fresh bool, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false, false
	}
	return e.value, s.now().Before(e.expiresAt), true
}

// Put stores value under key, replacing any prior entry.
func (s *TTLStore[V]) Put(key string, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[V]{value: value, expiresAt: s.now().Add(ttl)}
}

// Delete removes the entry for key, if any.
func (s *TTLStore[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len reports how many entries the store holds, expired ones included.
func (s *TTLStore[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
