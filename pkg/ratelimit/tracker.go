package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for cooldown tracking.
var (
	cooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_ratelimit_cooldowns_total",
		Help: "Total number of cooldowns recorded from 429 responses",
	})

	waitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_ratelimit_waits_total",
		Help: "Total number of upstream calls delayed by a cooldown",
	})

	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_ratelimit_wait_seconds",
		Help:    "Time upstream calls spent waiting for a cooldown",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
	})
)

// Config holds tracker configuration.
type Config struct {
	DefaultRetryAfter time.Duration
	MaxCooldown       time.Duration
	MaxWait           time.Duration

	// Clock returns the current time (for testing)
	Clock func() time.Time
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		DefaultRetryAfter: DefaultRetryAfter,
		MaxCooldown:       DefaultMaxCooldown,
		MaxWait:           DefaultMaxWait,
		Clock:             time.Now,
	}
}

// Tracker records upstream cooldowns and gates calls on them.
type Tracker struct {
	redis  *redis.Client
	config Config
	logger zerolog.Logger

	mu    sync.Mutex
	local State
}

// NewTracker creates a tracker. With a nil redisClient the cooldown is kept
// in process.
func NewTracker(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Tracker {
	d := DefaultConfig()
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = d.DefaultRetryAfter
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = d.MaxCooldown
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = d.MaxWait
	}
	if cfg.Clock == nil {
		cfg.Clock = d.Clock
	}
	return &Tracker{
		redis:  redisClient,
		config: cfg,
		logger: logger.With().Str("component", "ratelimit").Logger(),
	}
}

// GetState returns the current cooldown.
func (t *Tracker) GetState(ctx context.Context) (State, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.local, nil
	}

	ms, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if errors.Is(err, redis.Nil) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("get cooldown: %w", err)
	}
	return State{BlockedUntil: time.UnixMilli(ms)}, nil
}

// Observe records a cooldown when the upstream answered 429. Other statuses
// are ignored.
func (t *Tracker) Observe(ctx context.Context, status int, header http.Header) error {
	if status != http.StatusTooManyRequests {
		return nil
	}

	now := t.config.Clock()
	delay, ok := ParseRetryAfter(header, now)
	if !ok {
		delay = t.config.DefaultRetryAfter
	}
	if delay > t.config.MaxCooldown {
		delay = t.config.MaxCooldown
	}
	if delay <= 0 {
		return nil
	}

	until := now.Add(delay)
	cooldownsTotal.Inc()
	t.logger.Warn().
		Dur("retry_after", delay).
		Time("blocked_until", until).
		Msg("Upstream rate limited, cooling down")

	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if until.After(t.local.BlockedUntil) {
			t.local.BlockedUntil = until
		}
		return nil
	}

	if err := t.redis.Set(ctx, RedisKeyBlockedUntil, until.UnixMilli(), delay).Err(); err != nil {
		return fmt.Errorf("store cooldown in redis: %w", err)
	}
	return nil
}

// Wait blocks while a cooldown is active, at most MaxWait. A state lookup
// failure lets the call through.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Cooldown state unavailable, not waiting")
		return nil
	}

	wait := state.Remaining(t.config.Clock())
	if wait <= 0 {
		return nil
	}
	if wait > t.config.MaxWait {
		wait = t.config.MaxWait
	}

	waitsTotal.Inc()
	t.logger.Debug().Dur("wait", wait).Msg("Waiting for upstream cooldown")

	start := time.Now()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		waitSeconds.Observe(time.Since(start).Seconds())
		return nil
	}
}
