// Package service provides the shared scaffolding for concrete
// services: lifecycle, health aggregation, and cache helpers which
// never let a cache failure mask a successful API call.
package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/api"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/cache"
)

// Health aggregates a service's own state with its dependencies'.
type Health struct {
	Service      string        `json:"service"`
	Healthy      bool          `json:"healthy"`
	Initialized  bool          `json:"initialized"`
	ResponseTime time.Duration `json:"responseTime"`
	APIHealthy   bool          `json:"apiHealthy"`
	APIStats     api.Stats     `json:"apiStats"`
	Cache        *cache.Health `json:"cache,omitempty"`
}

// Base carries the API client, optional cache, and lifecycle state
// common to every service. Concrete services embed it.
type Base struct {
	name        string
	api         *api.Client
	cache       cache.Cache
	initialized bool
	sf          singleflight.Group
}

// NewBase builds service scaffolding. cache may be nil, in which case
// every cache helper is a no-op miss.
func NewBase(name string, client *api.Client, c cache.Cache) *Base {
	return &Base{name: name, api: client, cache: c}
}

// Name returns the service's name.
func (b *Base) Name() string { return b.name }

// API returns the service's API client.
func (b *Base) API() *api.Client { return b.api }

// Initialize validates configuration and marks the service ready.
// Reinitializing an already-initialized service fails fast.
func (b *Base) Initialize() error {
	if b.initialized {
		return &Error{Code: CodeAlreadyInitialized, Message: b.name + " is already initialized"}
	}
	if b.name == "" {
		return &Error{Code: CodeConfig, Message: "service name must not be empty"}
	}
	if b.api == nil {
		return &Error{Code: CodeConfig, Message: b.name + " requires an API client"}
	}
	b.initialized = true
	log.WithField("service", b.name).Info("service initialized")
	return nil
}

// Cleanup releases the API client. The initialized flag is always
// cleared, even when closing fails.
func (b *Base) Cleanup() {
	defer func() { b.initialized = false }()
	if b.api != nil {
		b.api.Close()
	}
	log.WithField("service", b.name).Info("service cleaned up")
}

// EnsureInitialized guards operations called before Initialize.
func (b *Base) EnsureInitialized() error {
	if !b.initialized {
		return &Error{Code: CodeNotInitialized, Message: b.name + " is not initialized"}
	}
	return nil
}

// HealthCheck walks the forward dependency graph: the service is
// healthy iff it's initialized and the API (and cache, if present)
// are healthy. Response time is the max of dependency latencies.
func (b *Base) HealthCheck(ctx context.Context) Health {
	var h = Health{Service: b.name, Initialized: b.initialized}

	apiHealthy, apiLatency, _ := b.api.HealthCheck(ctx)
	h.APIHealthy = apiHealthy
	h.APIStats = b.api.Stats()
	h.ResponseTime = apiLatency
	h.Healthy = b.initialized && apiHealthy

	if b.cache != nil {
		var ch = b.cache.HealthCheck(ctx)
		h.Cache = &ch
		h.Healthy = h.Healthy && ch.Healthy
		if ch.Latency > h.ResponseTime {
			h.ResponseTime = ch.Latency
		}
	}
	return h
}

// CacheKey builds "lowercase(serviceName):part1:part2:...".
func (b *Base) CacheKey(parts ...string) string {
	return strings.ToLower(b.name) + ":" + strings.Join(parts, ":")
}

// GetCached fetches and decodes a cached entry into out. Cache errors
// are swallowed with a warning and reported as misses; a corrupted
// entry is deleted so it can't poison later reads.
func (b *Base) GetCached(ctx context.Context, key string, out interface{}) bool {
	if b.cache == nil {
		return false
	}
	var val, ok, err = b.cache.Get(ctx, key)
	if err != nil {
		log.WithFields(log.Fields{"service": b.name, "key": key, "err": err}).
			Warn("cache get failed, treating as miss")
		return false
	}
	if !ok {
		return false
	}
	if err = json.Unmarshal(val, out); err != nil {
		log.WithFields(log.Fields{"service": b.name, "key": key, "err": err}).
			Warn("corrupted cache entry, deleting")
		if delErr := b.cache.Delete(ctx, key); delErr != nil {
			log.WithFields(log.Fields{"service": b.name, "key": key, "err": delErr}).
				Warn("failed to delete corrupted cache entry")
		}
		return false
	}
	return true
}

// SetCached stores a value, swallowing cache failures.
func (b *Base) SetCached(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if b.cache == nil {
		return
	}
	var encoded, err = json.Marshal(value)
	if err != nil {
		log.WithFields(log.Fields{"service": b.name, "key": key, "err": err}).
			Warn("failed to encode cache value")
		return
	}
	if err = b.cache.Set(ctx, key, encoded, ttl); err != nil {
		log.WithFields(log.Fields{"service": b.name, "key": key, "err": err}).
			Warn("cache set failed")
	}
}

// Invalidate removes keys, swallowing cache failures.
func (b *Base) Invalidate(ctx context.Context, keys ...string) {
	if b.cache == nil {
		return
	}
	for _, key := range keys {
		if err := b.cache.Delete(ctx, key); err != nil {
			log.WithFields(log.Fields{"service": b.name, "key": key, "err": err}).
				Warn("cache invalidation failed")
		}
	}
}

// InvalidatePattern removes all keys matching a glob, swallowing
// cache failures.
func (b *Base) InvalidatePattern(ctx context.Context, pattern string) {
	if b.cache == nil {
		return
	}
	if _, err := b.cache.ClearPattern(ctx, pattern); err != nil {
		log.WithFields(log.Fields{"service": b.name, "pattern": pattern, "err": err}).
			Warn("cache pattern invalidation failed")
	}
}

// Single collapses concurrent identical fetches so a hot key that
// misses the cache produces one API call, not a stampede.
func (b *Base) Single(key string, fn func() (interface{}, error)) (interface{}, error) {
	var out, err, _ = b.sf.Do(key, fn)
	return out, err
}
