package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// memoryCap bounds the in-process cache; the LRU evicts beyond it.
const memoryCap = 4096

// memoryCeiling is the LRU's own expiry, an upper bound over any
// per-entry TTL a caller may pass.
const memoryCeiling = time.Hour

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Cache over an expirable LRU. It serves
// deployments without a CACHE_URL and doubles as the cache fake in
// tests. Per-entry TTLs are honored on read; the LRU's own expiry and
// capacity bound memory growth.
type Memory struct {
	mu         sync.Mutex
	lru        *expirable.LRU[string, memoryEntry]
	defaultTTL time.Duration
	now        func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemory builds an in-process cache. A zero defaultTTL uses DefaultTTL.
func NewMemory(defaultTTL time.Duration) *Memory {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Memory{
		lru:        expirable.NewLRU[string, memoryEntry](memoryCap, nil, memoryCeiling),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entry, ok = m.lru.Get(key)
	if !ok || m.now().After(entry.expiresAt) {
		if ok {
			m.lru.Remove(key)
		}
		m.misses.Add(1)
		missesTotal.WithLabelValues("memory").Inc()
		return nil, false, nil
	}
	m.hits.Add(1)
	hitsTotal.WithLabelValues("memory").Inc()
	return entry.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Add(key, memoryEntry{value: value, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Remove(key)
	return nil
}

func (m *Memory) ClearPattern(ctx context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int
	for _, key := range m.lru.Keys() {
		if matchPattern(pattern, key) {
			m.lru.Remove(key)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) HealthCheck(ctx context.Context) Health {
	return Health{
		Healthy: true,
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Purge()
	return nil
}

// matchPattern supports the keyspace's glob subset: an optional single
// '*' as the final segment.
func matchPattern(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}
