// Package ratelimit honours upstream Retry-After cooldowns. A 429 response
// records a cooldown that every proxy instance observes before its next
// upstream call; the state lives in Redis when one is configured.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RedisKeyBlockedUntil holds the cooldown end as Unix milliseconds.
const RedisKeyBlockedUntil = "catalog:ratelimit:blocked_until"

const (
	// DefaultRetryAfter is used when a 429 carries no usable Retry-After.
	DefaultRetryAfter = time.Second

	// DefaultMaxCooldown caps any single cooldown.
	DefaultMaxCooldown = time.Minute

	// DefaultMaxWait caps how long one request waits for a cooldown.
	DefaultMaxWait = 5 * time.Second
)

// State is the current cooldown.
type State struct {
	// BlockedUntil is when upstream calls may resume. Zero means no cooldown.
	BlockedUntil time.Time `json:"blocked_until"`
}

// Blocked reports whether the cooldown is active at now.
func (s State) Blocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// Remaining returns the time left in the cooldown, or 0.
func (s State) Remaining(now time.Time) time.Duration {
	if !s.Blocked(now) {
		return 0
	}
	return s.BlockedUntil.Sub(now)
}

// ParseRetryAfter reads a Retry-After header in either delay-seconds or
// HTTP-date form. ok is false when the header is absent or malformed.
func ParseRetryAfter(h http.Header, now time.Time) (d time.Duration, ok bool) {
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	at, err := http.ParseTime(raw)
	if err != nil {
		return 0, false
	}
	if d := at.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}
