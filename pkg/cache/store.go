package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the edge cache backend. Get returns ErrCacheMiss for absent or
// expired keys; stale entries inside their grace window are returned and the
// caller decides whether to revalidate. Set replaces any previous entry and
// must be safe to repeat with the same value.
type Store interface {
	Get(ctx context.Context, key RequestKey) (*Entry, error)
	Set(ctx context.Context, key RequestKey, entry *Entry) error
	Delete(ctx context.Context, key RequestKey) error
}

// Clock returns the current time. Stores accept one so tests can move time.
type Clock func() time.Time
