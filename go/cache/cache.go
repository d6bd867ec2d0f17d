// Package cache defines the key-value cache consumed by the service
// layer, with a Redis implementation for deployments and an in-process
// implementation for cache-less runs and tests.
//
// Values are opaque byte slices; the service layer owns serialization.
// Keys are namespaced by the owning service ("bytesservice:balance:...")
// and pattern deletes use a single '*' suffix at the last segment.
package cache

import (
	"context"
	"time"
)

// Health reports the outcome of a cache round-trip probe together with
// cumulative counters.
type Health struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Hits    int64         `json:"hits"`
	Misses  int64         `json:"misses"`
	Errors  int64         `json:"errors"`
	Error   string        `json:"error,omitempty"`
}

// Cache is the capability the service layer depends on.
type Cache interface {
	// Get returns the stored value, or ok=false when the key is absent
	// or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value for at most ttl. A zero ttl uses the cache's
	// configured default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes a single key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// ClearPattern removes all keys matching a glob pattern and returns
	// how many were removed. Implementations must iterate incrementally
	// rather than scanning the whole keyspace in one blocking call.
	ClearPattern(ctx context.Context, pattern string) (int, error)
	// HealthCheck performs a set/get/delete round trip on a probe key.
	HealthCheck(ctx context.Context) Health
	Close() error
}

// DefaultTTL applies when a Set call passes a zero TTL and the cache
// wasn't configured with its own default.
const DefaultTTL = 300 * time.Second
