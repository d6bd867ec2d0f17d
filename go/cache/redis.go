package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a Redis-backed cache.
type RedisConfig struct {
	// URL is a redis:// connection string.
	URL string
	// KeyPrefix is prepended to every key, ahead of the service-name
	// segment, so multiple deployments can share one Redis.
	KeyPrefix string
	// DefaultTTL applies when Set is called with a zero TTL.
	DefaultTTL time.Duration
	// PoolSize bounds the connection pool (default 10).
	PoolSize int
}

// Redis is a Cache backed by a Redis server.
type Redis struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64
}

// NewRedis connects to the configured Redis server. The connection is
// verified eagerly so misconfiguration fails at startup, not first use.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	var opts, err = redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	if cfg.PoolSize != 0 {
		opts.PoolSize = cfg.PoolSize
	} else if opts.PoolSize == 0 {
		opts.PoolSize = 10
	}
	var client = redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach cache: %w", err)
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	return &Redis{client: client, prefix: cfg.KeyPrefix, defaultTTL: cfg.DefaultTTL}, nil
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var val, err = r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		r.misses.Add(1)
		missesTotal.WithLabelValues("redis").Inc()
		return nil, false, nil
	}
	if err != nil {
		r.errs.Add(1)
		errorsTotal.WithLabelValues("redis", "get").Inc()
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}
	r.hits.Add(1)
	hitsTotal.WithLabelValues("redis").Inc()
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		r.errs.Add(1)
		errorsTotal.WithLabelValues("redis", "set").Inc()
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.errs.Add(1)
		errorsTotal.WithLabelValues("redis", "delete").Inc()
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}

// ClearPattern deletes keys matching the glob via SCAN, so a large
// keyspace never blocks the server the way KEYS would.
func (r *Redis) ClearPattern(ctx context.Context, pattern string) (int, error) {
	var deleted int
	var iter = r.client.Scan(ctx, 0, r.key(pattern), 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.errs.Add(1)
			errorsTotal.WithLabelValues("redis", "clear_pattern").Inc()
			return deleted, fmt.Errorf("cache clear %q: %w", pattern, err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		r.errs.Add(1)
		errorsTotal.WithLabelValues("redis", "clear_pattern").Inc()
		return deleted, fmt.Errorf("cache scan %q: %w", pattern, err)
	}
	return deleted, nil
}

func (r *Redis) HealthCheck(ctx context.Context) Health {
	var probe = r.key("health:probe")
	var started = time.Now()

	var err = r.client.Set(ctx, probe, "ok", 10*time.Second).Err()
	if err == nil {
		err = r.client.Get(ctx, probe).Err()
	}
	if err == nil {
		err = r.client.Del(ctx, probe).Err()
	}

	var h = Health{
		Healthy: err == nil,
		Latency: time.Since(started),
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
		Errors:  r.errs.Load(),
	}
	if err != nil {
		h.Error = err.Error()
	}
	return h
}

func (r *Redis) Close() error { return r.client.Close() }
