package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const storeRedis = "redis"

// Manager is a Store backed by redis, shared by every proxy instance that
// points at the same redis. Keys expire in redis at the end of the grace window.
type Manager struct {
	redis *redis.Client
	now   Clock
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithManagerClock overrides the clock used for freshness checks.
func WithManagerClock(now Clock) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a redis-backed edge store.
func NewManager(redisClient *redis.Client, opts ...ManagerOption) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	m := &Manager{
		redis: redisClient,
		now:   defaultClock,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get retrieves an entry by key.
// Returns ErrCacheMiss if the key doesn't exist or the entry is past its grace window.
func (m *Manager) Get(ctx context.Context, key RequestKey) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.StorageKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(storeRedis).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(storeRedis, "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues(storeRedis, "get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	state := entry.State(m.now())
	if state == StateExpired {
		_ = m.Delete(ctx, key)
		CacheMisses.WithLabelValues(storeRedis).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(storeRedis, state.String()).Inc()
	return &entry, nil
}

// Set stores an entry; redis drops it when the grace window ends.
func (m *Manager) Set(ctx context.Context, key RequestKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL(m.now())
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues(storeRedis, "set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.StorageKey(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues(storeRedis, "set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	EntrySize.WithLabelValues(storeRedis).Observe(float64(len(data)))
	return nil
}

// Delete removes an entry.
func (m *Manager) Delete(ctx context.Context, key RequestKey) error {
	if err := m.redis.Del(ctx, key.StorageKey()).Err(); err != nil {
		CacheErrors.WithLabelValues(storeRedis, "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping reports whether redis is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.redis.Ping(ctx).Err()
}
