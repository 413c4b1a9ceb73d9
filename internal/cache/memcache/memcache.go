// Package memcache provides an in-memory implementation of cache.Store.
package memcache

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/citycare/internal/cache"
)

// Store holds cache entries in memory. Suitable for dev/testing and single
// instance deployments.
type Store struct {
	mu      sync.RWMutex
	entries map[string]cache.Entry
	ttl     time.Duration
	now     func() time.Time
}

// New initializes an in-memory Store. A non-positive ttl uses cache.DefaultTTL.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Store{
		entries: make(map[string]cache.Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the value for key unless it is absent or expired.
// Expired entries are left in place and overwritten by the next Put.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || e.Expired(s.now(), s.ttl) {
		return nil, false, nil
	}
	return append([]byte(nil), e.Value...), true, nil
}

// Put stores a copy of value, replacing any previous entry.
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cache.Entry{
		Key:      key,
		Value:    append([]byte(nil), value...),
		StoredAt: s.now(),
	}
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
