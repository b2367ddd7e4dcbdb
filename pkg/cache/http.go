package cache

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultMaxAge is the freshness window of proxied JSON responses
	DefaultMaxAge = 600 * time.Second

	// DefaultStaleWhileRevalidate is the grace window after DefaultMaxAge
	DefaultStaleWhileRevalidate = 60 * time.Second
)

// Policy is the freshness policy attached to cacheable responses.
type Policy struct {
	MaxAge               time.Duration
	StaleWhileRevalidate time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAge:               DefaultMaxAge,
		StaleWhileRevalidate: DefaultStaleWhileRevalidate,
	}
}

// CacheControl renders the Cache-Control header value for the policy.
func (p Policy) CacheControl() string {
	return fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d",
		int64(p.MaxAge/time.Second), int64(p.StaleWhileRevalidate/time.Second))
}

// NewEntry builds an entry for a response produced at now. The header is
// cloned and receives the policy's Cache-Control value.
func NewEntry(status int, header http.Header, body []byte, policy Policy, now time.Time) *Entry {
	h := header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set("Cache-Control", policy.CacheControl())

	fresh := now.Add(policy.MaxAge)
	return &Entry{
		Body:       body,
		StatusCode: status,
		Header:     h,
		StoredAt:   now,
		FreshUntil: fresh,
		StaleUntil: fresh.Add(policy.StaleWhileRevalidate),
	}
}

// WriteEntry writes a cached entry to w. The stored headers are copied
// unchanged; responses served from the store (HIT or STALE) carry an Age
// header so downstream caches apply the same freshness window.
func WriteEntry(w http.ResponseWriter, e *Entry, cacheStatus string, now time.Time) {
	h := w.Header()
	for key, values := range e.Header {
		h[key] = append([]string(nil), values...)
	}
	h.Set("X-Cache", cacheStatus)
	if cacheStatus == "HIT" || cacheStatus == "STALE" {
		h.Set("Age", strconv.FormatInt(int64(e.Age(now)/time.Second), 10))
	}
	h.Set("Content-Length", strconv.Itoa(len(e.Body)))

	w.WriteHeader(e.StatusCode)
	_, _ = w.Write(e.Body)
}
