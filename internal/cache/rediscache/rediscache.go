// Package rediscache provides a Redis implementation of cache.Store.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linnemanlabs/citycare/internal/cache"
)

const keyPrefix = "citycare:cache:"

// Store keeps cache entries in Redis. Entries carry their own stored_at so
// expiry is checked on read even if the key outlives its EX.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

type record struct {
	Value    []byte    `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

// Connect parses url, creates a client and verifies connectivity.
func Connect(ctx context.Context, url string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return New(rdb, ttl), nil
}

// New wraps an existing client. A non-positive ttl uses cache.DefaultTTL.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl, now: time.Now}
}

// Close releases the client.
func (s *Store) Close() error { return s.rdb.Close() }

// Ping reports whether Redis is reachable, for readiness probes.
func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

// Get returns the value for key unless it is absent or expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		// unreadable entries are treated as absent and replaced on the next Put
		return nil, false, nil
	}
	e := cache.Entry{Key: key, Value: rec.Value, StoredAt: rec.StoredAt}
	if e.Expired(s.now(), s.ttl) {
		return nil, false, nil
	}
	return e.Value, true, nil
}

// Put overwrites key with value and a fresh stored_at.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	raw, err := json.Marshal(record{Value: value, StoredAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
