package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model"
)

var ErrCacheMiss = errors.New("metadata: cache miss")

// Cache keeps the last good lift list per key.
type Cache interface {
	Load(ctx context.Context, key string) ([]model.Lift, error)
	Store(ctx context.Context, key string, lifts []model.Lift) error
}

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*MemoryCache)(nil)
)

type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "snowpeak:lifts:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCache) Load(ctx context.Context, key string) ([]model.Lift, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var lifts []model.Lift
	if err := json.Unmarshal(val, &lifts); err != nil {
		return nil, fmt.Errorf("decode cached lifts: %w", err)
	}
	return lifts, nil
}

func (r *RedisCache) Store(ctx context.Context, key string, lifts []model.Lift) error {
	b, err := json.Marshal(lifts)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, b, r.ttl).Err()
}

// MemoryCache is the in-process Cache used when no redis address is configured.
type MemoryCache struct {
	mu    sync.RWMutex
	lifts map[string][]model.Lift
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{lifts: make(map[string][]model.Lift)}
}

func (m *MemoryCache) Load(_ context.Context, key string) ([]model.Lift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lifts[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]model.Lift(nil), l...), nil
}

func (m *MemoryCache) Store(_ context.Context, key string, lifts []model.Lift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lifts[key] = append([]model.Lift(nil), lifts...)
	return nil
}
