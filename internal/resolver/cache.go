package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/n0madic/go-callview/internal/memo"
)

// Cache stores resolved reference values. Refs address content by digest, so
// a cached value never goes stale; expiry only bounds memory.
type Cache interface {
	GetMany(ctx context.Context, uris []string) ([]json.RawMessage, error)
	SetMany(ctx context.Context, vals map[string]json.RawMessage) error
}

// Caching serves references from a cache and forwards misses to the next
// resolver. Cache failures are logged and treated as misses.
type Caching struct {
	next  Resolver
	cache Cache
	log   *zap.Logger
}

// NewCaching wraps next with cache. log may be nil.
func NewCaching(next Resolver, cache Cache, log *zap.Logger) *Caching {
	if log == nil {
		log = zap.NewNop()
	}
	return &Caching{next: next, cache: cache, log: log}
}

func (c *Caching) ResolveRefs(ctx context.Context, uris []string) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(uris))
	if len(uris) == 0 {
		return out, nil
	}

	cached, err := c.cache.GetMany(ctx, uris)
	if err != nil || len(cached) != len(uris) {
		c.log.Warn("refs.cache_get_failed", zap.Error(err), zap.Int("refs", len(uris)))
		cached = make([]json.RawMessage, len(uris))
	}

	var missing []string
	var missingIdx []int
	for i, v := range cached {
		if len(v) > 0 {
			out[i] = v
			continue
		}
		missing = append(missing, uris[i])
		missingIdx = append(missingIdx, i)
	}
	c.log.Debug("refs.cache",
		zap.Int("hits", len(uris)-len(missing)),
		zap.Int("misses", len(missing)))
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.next.ResolveRefs(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(missing) {
		return nil, fmt.Errorf("resolver returned %d values for %d refs", len(fetched), len(missing))
	}

	store := make(map[string]json.RawMessage, len(fetched))
	for j, v := range fetched {
		out[missingIdx[j]] = v
		if len(v) > 0 {
			store[missing[j]] = v
		}
	}
	if len(store) > 0 {
		if err := c.cache.SetMany(ctx, store); err != nil {
			c.log.Warn("refs.cache_set_failed", zap.Error(err), zap.Int("refs", len(store)))
		}
	}
	return out, nil
}

// MemoryCache keeps values in a process-local TTL/LRU store.
type MemoryCache struct {
	store *memo.Store[json.RawMessage]
}

// NewMemoryCache creates an in-process cache. Close releases its sweeper.
func NewMemoryCache(ttl time.Duration, capacity int) *MemoryCache {
	return &MemoryCache{store: memo.New[json.RawMessage](ttl, capacity)}
}

func (m *MemoryCache) GetMany(_ context.Context, uris []string) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(uris))
	for i, uri := range uris {
		if v, ok := m.store.Get(uri); ok {
			out[i] = v
		}
	}
	return out, nil
}

func (m *MemoryCache) SetMany(_ context.Context, vals map[string]json.RawMessage) error {
	for uri, v := range vals {
		m.store.Put(uri, append(json.RawMessage(nil), v...))
	}
	return nil
}

// Close stops the background sweeper.
func (m *MemoryCache) Close() {
	m.store.Close()
}

const redisKeyPrefix = "callview:ref:"

// RedisConfig configures the shared Redis cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache shares resolved values between server instances.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache connects to Redis, instruments the client with tracing and
// verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := redisotel.InstrumentTracing(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to instrument redis client: %w", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisCacheFromClient(client, cfg.TTL), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = memo.DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(uri string) string {
	return redisKeyPrefix + uri
}

func (r *RedisCache) GetMany(ctx context.Context, uris []string) ([]json.RawMessage, error) {
	keys := make([]string, len(uris))
	for i, uri := range uris {
		keys[i] = redisKey(uri)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([]json.RawMessage, len(uris))
	for i, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			out[i] = json.RawMessage(s)
		}
	}
	return out, nil
}

func (r *RedisCache) SetMany(ctx context.Context, vals map[string]json.RawMessage) error {
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for uri, v := range vals {
			p.Set(ctx, redisKey(uri), []byte(v), r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
