// Package cache defines the keyed TTL store the triage service uses to avoid
// repeat model calls for identical inputs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// DefaultTTL is how long an entry is served before it is treated as absent.
const DefaultTTL = 24 * time.Hour

// Entry is a stored value and the time it was last written.
type Entry struct {
	Key      string
	Value    []byte
	StoredAt time.Time
}

// Expired reports whether the entry is older than ttl at now. A non-positive
// ttl never expires.
func (e Entry) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(e.StoredAt) > ttl
}

// Store is a key/value store with lazy TTL expiry. Get returns ok=false for
// absent and expired keys alike. Put is an upsert that refreshes StoredAt.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Key derives a deterministic cache key from semantic inputs. Each part is
// normalized first so incidental whitespace and case differences collapse
// to the same key.
func Key(prefix string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(Normalize(p)))
		h.Write([]byte{0x1f})
	}
	return prefix + hex.EncodeToString(h.Sum(nil))
}

// Normalize trims, collapses internal whitespace runs to one space, and lowercases.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
