package cache

import (
	"net/http"
	"time"
)

// State describes how usable an entry is at a given instant.
type State int

const (
	// StateExpired means the entry must not be served.
	StateExpired State = iota

	// StateStale means the entry may be served while a refresh runs.
	StateStale

	// StateFresh means the entry is served as is.
	StateFresh
)

// String returns the label used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "expired"
	}
}

// Entry represents a cached upstream response. Entries are never mutated
// after construction; a newer response replaces the whole entry.
type Entry struct {
	// Body is the serialized response body
	Body []byte `json:"body"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Header holds the response headers, including Cache-Control
	Header http.Header `json:"header"`

	// StoredAt is when the response was produced
	StoredAt time.Time `json:"stored_at"`

	// FreshUntil is the end of the max-age window
	FreshUntil time.Time `json:"fresh_until"`

	// StaleUntil is the end of the stale-while-revalidate grace window
	StaleUntil time.Time `json:"stale_until"`
}

// ContentType returns the stored Content-Type header.
func (e *Entry) ContentType() string {
	return e.Header.Get("Content-Type")
}

// State reports the freshness of the entry at now.
func (e *Entry) State(now time.Time) State {
	switch {
	case !now.After(e.FreshUntil):
		return StateFresh
	case !now.After(e.StaleUntil):
		return StateStale
	default:
		return StateExpired
	}
}

// TTL returns how long the store should keep the entry, grace window included.
// Returns 0 if already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	ttl := e.StaleUntil.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Age returns the entry age at now, truncated to whole seconds.
func (e *Entry) Age(now time.Time) time.Duration {
	age := now.Sub(e.StoredAt)
	if age < 0 {
		return 0
	}
	return age.Truncate(time.Second)
}
