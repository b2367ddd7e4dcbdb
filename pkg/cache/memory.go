package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/viccon/sturdyc"
)

const storeMemory = "memory"

// MemoryConfig configures the in-process store.
type MemoryConfig struct {
	// Capacity is the maximum number of entries. Must be greater than 0.
	Capacity int

	// NumShards spreads entries over independently locked shards.
	NumShards int

	// TTL bounds how long any entry is kept, usually MaxAge + StaleWhileRevalidate.
	TTL time.Duration

	// EvictionPercentage is the share of entries dropped when Capacity is reached.
	EvictionPercentage int
}

// DefaultMemoryConfig returns a MemoryConfig sized for a single proxy process.
func DefaultMemoryConfig() MemoryConfig {
	policy := DefaultPolicy()
	return MemoryConfig{
		Capacity:           10000,
		NumShards:          256,
		TTL:                policy.MaxAge + policy.StaleWhileRevalidate,
		EvictionPercentage: 10,
	}
}

// Validate checks the configuration values.
func (c MemoryConfig) Validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("memory cache capacity must be greater than 0 (got %d)", c.Capacity)
	case c.NumShards <= 0:
		return fmt.Errorf("memory cache shards must be greater than 0 (got %d)", c.NumShards)
	case c.TTL <= 0:
		return fmt.Errorf("memory cache ttl must be greater than 0 (got %s)", c.TTL)
	case c.EvictionPercentage < 1 || c.EvictionPercentage > 100:
		return fmt.Errorf("memory cache eviction percentage must be between 1 and 100 (got %d)", c.EvictionPercentage)
	}
	return nil
}

// MemoryStore is a Store kept inside the proxy process. Capacity management
// is delegated to sturdyc; freshness is still decided by the entry itself.
type MemoryStore struct {
	client *sturdyc.Client[*Entry]
	now    Clock
}

// NewMemoryStore creates an in-process edge store.
func NewMemoryStore(cfg MemoryConfig) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MemoryStore{
		client: sturdyc.New[*Entry](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage),
		now:    defaultClock,
	}, nil
}

// WithClock returns the store using now for freshness checks.
func (s *MemoryStore) WithClock(now Clock) *MemoryStore {
	s.now = now
	return s
}

// Get retrieves an entry by key.
func (s *MemoryStore) Get(_ context.Context, key RequestKey) (*Entry, error) {
	entry, ok := s.client.Get(key.String())
	if !ok || entry == nil {
		CacheMisses.WithLabelValues(storeMemory).Inc()
		return nil, ErrCacheMiss
	}

	state := entry.State(s.now())
	if state == StateExpired {
		s.client.Delete(key.String())
		CacheMisses.WithLabelValues(storeMemory).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(storeMemory, state.String()).Inc()
	return entry, nil
}

// Set stores an entry, replacing any previous one.
func (s *MemoryStore) Set(_ context.Context, key RequestKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if entry.TTL(s.now()) <= 0 {
		return nil
	}
	s.client.Set(key.String(), entry)
	EntrySize.WithLabelValues(storeMemory).Observe(float64(len(entry.Body)))
	return nil
}

// Delete removes an entry.
func (s *MemoryStore) Delete(_ context.Context, key RequestKey) error {
	s.client.Delete(key.String())
	return nil
}

// Len returns the number of entries currently held.
func (s *MemoryStore) Len() int {
	return s.client.Size()
}

func defaultClock() time.Time {
	return time.Now()
}
