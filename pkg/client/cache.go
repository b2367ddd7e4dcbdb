// Package client provides the client-side request cache: concurrent identical
// requests share one in-flight fetch, transient failures are retried with a
// linear backoff, successes are kept for a TTL and failures are never cached.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/catalog-proxy/pkg/cache"
)

// Prometheus metrics for the request cache.
var (
	clientLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_client_cache_lookups_total",
		Help: "Request cache lookups by cache and result (hit, coalesced, miss)",
	}, []string{"cache", "result"})

	clientFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_client_cache_failures_total",
		Help: "Fetches that ended in failure and were purged from the cache",
	}, []string{"cache"})

	clientRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_client_retries_total",
		Help: "Total number of retry attempts by cache",
	}, []string{"cache"})

	clientRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_client_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by cache",
	}, []string{"cache"})
)

const (
	// DefaultTTL is how long a successful result is reused.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxAttempts is the initial attempt plus two retries.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay scales the linear backoff between attempts.
	DefaultBaseDelay = 250 * time.Millisecond
)

// Fetcher performs the underlying request.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Config holds the request cache configuration.
type Config struct {
	// TTL is how long a successful result is reused, counted from when its fetch started
	TTL time.Duration

	// MaxAttempts includes the first attempt
	MaxAttempts int

	// BaseDelay is multiplied by the attempt number to get the backoff
	BaseDelay time.Duration

	// Retryable decides whether a failed attempt is retried
	Retryable func(error) bool

	// Clock returns the current time (for testing)
	Clock func() time.Time
}

// DefaultConfig returns a 5 minute TTL, three attempts and a 250ms base delay.
func DefaultConfig() Config {
	return Config{
		TTL:         DefaultTTL,
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Retryable:   DefaultRetryable,
		Clock:       time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.Retryable == nil {
		c.Retryable = d.Retryable
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	return c
}

// Result is the shared handle for one fetch. Every caller that looked up the
// key while the fetch was pending or fresh holds the same Result and observes
// the same value or error.
type Result[T any] struct {
	done      chan struct{}
	value     T
	err       error
	createdAt time.Time
}

func newResult[T any](createdAt time.Time) *Result[T] {
	return &Result[T]{done: make(chan struct{}), createdAt: createdAt}
}

// Done is closed once the fetch has settled.
func (r *Result[T]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the fetch settles or ctx ends. Giving up on ctx does not
// cancel the fetch; other waiters still receive its outcome.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (r *Result[T]) resolve(value T, err error) {
	r.value = value
	r.err = err
	close(r.done)
}

// pending reports whether the fetch is still running.
func (r *Result[T]) pending() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// RequestCache maps request keys to shared results. At most one Result per
// key is reachable at any time.
type RequestCache[T any] struct {
	name    string
	entries *xsync.MapOf[cache.RequestKey, *Result[T]]
	config  Config
	logger  zerolog.Logger
}

// NewRequestCache creates an empty request cache. The name labels its metrics
// and log lines.
func NewRequestCache[T any](name string, cfg Config, logger zerolog.Logger) *RequestCache[T] {
	return &RequestCache[T]{
		name:    name,
		entries: xsync.NewMapOf[cache.RequestKey, *Result[T]](),
		config:  cfg.withDefaults(),
		logger:  logger.With().Str("component", "request-cache").Str("cache", name).Logger(),
	}
}

// Get returns the shared handle for key. A pending or unexpired handle is
// returned as is, without any network activity; otherwise a new handle is
// installed and fetch starts in the background. The fetch runs on a context
// detached from ctx's cancellation, so no caller can cancel it for the others.
func (c *RequestCache[T]) Get(ctx context.Context, key cache.RequestKey, fetch Fetcher[T]) *Result[T] {
	now := c.config.Clock()

	var created *Result[T]
	res, _ := c.entries.Compute(key, func(old *Result[T], loaded bool) (*Result[T], bool) {
		if loaded && c.usable(old, now) {
			return old, false
		}
		created = newResult[T](now)
		return created, false
	})

	if created == nil {
		if res.pending() {
			clientLookupsTotal.WithLabelValues(c.name, "coalesced").Inc()
		} else {
			clientLookupsTotal.WithLabelValues(c.name, "hit").Inc()
		}
		return res
	}

	clientLookupsTotal.WithLabelValues(c.name, "miss").Inc()
	go c.run(context.WithoutCancel(ctx), key, created, fetch)
	return created
}

// GetWithCache is Get followed by Wait.
func (c *RequestCache[T]) GetWithCache(ctx context.Context, key cache.RequestKey, fetch Fetcher[T]) (T, error) {
	return c.Get(ctx, key, fetch).Wait(ctx)
}

// Invalidate drops the entry for key. A pending fetch keeps running for the
// callers already holding its handle.
func (c *RequestCache[T]) Invalidate(key cache.RequestKey) {
	c.entries.Delete(key)
}

// Sweep removes settled entries whose TTL has elapsed and returns how many
// were removed. Expired entries are otherwise replaced lazily on lookup.
func (c *RequestCache[T]) Sweep() int {
	now := c.config.Clock()
	removed := 0
	c.entries.Range(func(key cache.RequestKey, _ *Result[T]) bool {
		c.entries.Compute(key, func(old *Result[T], loaded bool) (*Result[T], bool) {
			if !loaded {
				return old, true
			}
			if c.usable(old, now) {
				return old, false
			}
			removed++
			return old, true
		})
		return true
	})
	return removed
}

// Len returns the number of entries, pending ones included.
func (c *RequestCache[T]) Len() int {
	return c.entries.Size()
}

// usable reports whether a handle may be returned at now: still pending, or
// settled successfully and created no longer than TTL ago.
func (c *RequestCache[T]) usable(r *Result[T], now time.Time) bool {
	if r.pending() {
		return true
	}
	if r.err != nil {
		return false
	}
	return now.Sub(r.createdAt) <= c.config.TTL
}

func (c *RequestCache[T]) run(ctx context.Context, key cache.RequestKey, res *Result[T], fetch Fetcher[T]) {
	logger := c.logger.With().Str("key", key.String()).Logger()

	value, err := c.fetchSafely(ctx, logger, fetch)
	if err != nil {
		// Remove before resolving so the next caller never sees the failure.
		c.entries.Compute(key, func(old *Result[T], loaded bool) (*Result[T], bool) {
			if !loaded {
				return old, true
			}
			return old, old == res
		})
		clientFailuresTotal.WithLabelValues(c.name).Inc()
		logger.Warn().Err(err).Msg("Request failed, entry purged")

		var zero T
		res.resolve(zero, err)
		return
	}

	res.resolve(value, nil)
	logger.Debug().Dur("ttl", c.config.TTL).Msg("Cached result")
}

func (c *RequestCache[T]) fetchSafely(ctx context.Context, logger zerolog.Logger, fetch Fetcher[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value, err = zero, fmt.Errorf("%w: %v", ErrFetchPanicked, r)
		}
	}()
	return retryWithBackoff(ctx, c.config, c.name, logger, fetch)
}
