// Package proxy implements the edge proxy in front of the upstream catalog
// API: it rewrites /api/<path> to <upstream>/<path>, paginates collection
// responses, and serves successful responses from the edge cache.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/catalog-proxy/pkg/cache"
	"github.com/Sternrassler/catalog-proxy/pkg/pagination"
	"github.com/Sternrassler/catalog-proxy/pkg/upstream"
)

// Prometheus metrics for the edge proxy.
var (
	proxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_proxy_requests_total",
		Help: "Proxied requests by cache status (HIT, STALE, MISS, BYPASS, ERROR)",
	}, []string{"cache_status"})

	proxyCoalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_proxy_coalesced_total",
		Help: "Requests that shared another request's upstream call",
	})

	proxyCacheWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_proxy_cache_writes_total",
		Help: "Background edge cache writes by result",
	}, []string{"result"})

	proxyRevalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_proxy_revalidations_total",
		Help: "Background revalidations of stale entries by result",
	}, []string{"result"})
)

// X-Cache header values.
const (
	statusHit    = "HIT"
	statusStale  = "STALE"
	statusMiss   = "MISS"
	statusBypass = "BYPASS"
	statusError  = "ERROR"
)

// Upstream is the call the proxy makes on a cache miss.
type Upstream interface {
	Get(ctx context.Context, path, rawQuery string) (*upstream.Response, error)
}

// Config holds the proxy configuration.
type Config struct {
	// Policy is attached to every cacheable response
	Policy cache.Policy

	// PathPrefix is stripped from inbound paths before forwarding
	PathPrefix string

	// WriteTimeout bounds a background cache write
	WriteTimeout time.Duration

	// Clock returns the current time (for testing)
	Clock func() time.Time
}

// DefaultConfig returns the configuration of the public deployment.
func DefaultConfig() Config {
	return Config{
		Policy:       cache.DefaultPolicy(),
		PathPrefix:   "/api",
		WriteTimeout: 5 * time.Second,
		Clock:        time.Now,
	}
}

// Proxy is the edge proxy handler.
type Proxy struct {
	store    cache.Store
	upstream Upstream
	config   Config
	logger   zerolog.Logger

	flights singleflight.Group
	pending sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a proxy serving from store and falling back to up.
func New(cfg Config, store cache.Store, up Upstream, logger zerolog.Logger) *Proxy {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Proxy{
		store:    store,
		upstream: up,
		config:   cfg,
		logger:   logger.With().Str("component", "edge-proxy").Logger(),
	}
}

// Wait blocks until background cache writes and revalidations finish. It
// must not race with ServeHTTP; use Close on shutdown.
func (p *Proxy) Wait() {
	p.pending.Wait()
}

// Close stops scheduling background work and waits for the work already
// running. Requests served after Close are answered but not cached.
func (p *Proxy) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.pending.Wait()
}

// track registers one unit of background work. It reports false once the
// proxy is closed.
func (p *Proxy) track() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	p.pending.Add(1)
	return true
}

// target is the upstream request derived from an inbound request.
type target struct {
	key      cache.RequestKey
	path     string
	rawQuery string
	params   pagination.Params
}

// ServeHTTP handles one inbound request.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writePreflight(w)
		return
	}
	if r.URL.Path == "/" || r.URL.Path == "/favicon.ico" {
		writeHealth(w)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	t := p.target(r)
	logger := p.logger.With().Str("key", t.key.String()).Logger()

	entry, err := p.store.Get(r.Context(), t.key)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		logger.Warn().Err(err).Msg("Edge cache lookup failed, treating as miss")
	}
	if entry != nil {
		now := p.config.Clock()
		switch entry.State(now) {
		case cache.StateFresh:
			logger.Debug().Msg("Edge cache hit")
			proxyRequestsTotal.WithLabelValues(statusHit).Inc()
			cache.WriteEntry(w, entry, statusHit, now)
			return
		case cache.StateStale:
			logger.Debug().Msg("Serving stale entry, revalidating")
			proxyRequestsTotal.WithLabelValues(statusStale).Inc()
			cache.WriteEntry(w, entry, statusStale, now)
			p.revalidate(t)
			return
		}
	}

	res := p.fetch(r.Context(), t)
	proxyRequestsTotal.WithLabelValues(res.status).Inc()
	cache.WriteEntry(w, res.entry, res.status, p.config.Clock())
}

func (p *Proxy) target(r *http.Request) target {
	// The upstream is called with exactly the keyed path.
	reqPath := path.Clean("/" + r.URL.Path)
	prefix := p.config.PathPrefix
	if prefix != "" && (reqPath == prefix || strings.HasPrefix(reqPath, prefix+"/")) {
		reqPath = strings.TrimPrefix(reqPath, prefix)
	}

	query := r.URL.Query()
	key := cache.NewRequestKey(http.MethodGet, reqPath, pagination.Canonicalize(query))
	return target{
		key:      key,
		path:     key.Path,
		rawQuery: r.URL.RawQuery,
		params:   pagination.ParseParams(query),
	}
}

// result is the response produced for a miss. Only cacheable results are
// written to the store.
type result struct {
	entry     *cache.Entry
	status    string
	cacheable bool
}

// fetch coalesces concurrent misses for the same key into one upstream call.
// The call runs on a context detached from the inbound request, so a client
// that disconnects does not fail the requests sharing its call.
func (p *Proxy) fetch(ctx context.Context, t target) *result {
	v, _, shared := p.flights.Do(t.key.String(), func() (any, error) {
		res := p.load(context.WithoutCancel(ctx), t)
		if res.cacheable {
			p.storeAsync(t.key, res.entry)
		}
		return res, nil
	})
	if shared {
		proxyCoalescedTotal.Inc()
	}
	return v.(*result)
}

// revalidate refreshes a stale entry in the background.
func (p *Proxy) revalidate(t target) {
	if !p.track() {
		return
	}
	go func() {
		defer p.pending.Done()

		v, _, _ := p.flights.Do(t.key.String(), func() (any, error) {
			res := p.load(context.Background(), t)
			if res.cacheable {
				p.write(t.key, res.entry)
			}
			return res, nil
		})
		if v.(*result).cacheable {
			proxyRevalidationsTotal.WithLabelValues("refreshed").Inc()
		} else {
			proxyRevalidationsTotal.WithLabelValues("failed").Inc()
		}
	}()
}

// storeAsync writes entry to the store without holding up the response.
// Failures are logged and never reach the client.
func (p *Proxy) storeAsync(key cache.RequestKey, entry *cache.Entry) {
	if !p.track() {
		proxyCacheWritesTotal.WithLabelValues("skipped").Inc()
		p.logger.Debug().Str("key", key.String()).Msg("Proxy closed, response not cached")
		return
	}
	go func() {
		defer p.pending.Done()
		p.write(key, entry)
	}()
}

func (p *Proxy) write(key cache.RequestKey, entry *cache.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.WriteTimeout)
	defer cancel()

	if err := p.store.Set(ctx, key, entry); err != nil {
		proxyCacheWritesTotal.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Str("key", key.String()).Msg("Edge cache write failed")
		return
	}
	proxyCacheWritesTotal.WithLabelValues("ok").Inc()
	p.logger.Debug().Str("key", key.String()).Dur("ttl", entry.TTL(p.config.Clock())).Msg("Cached response")
}

// load calls the upstream once and shapes the response.
func (p *Proxy) load(ctx context.Context, t target) *result {
	resp, err := p.upstream.Get(ctx, t.path, t.rawQuery)
	if err != nil {
		status := http.StatusBadGateway
		var upErr *upstream.Error
		if errors.As(err, &upErr) && upErr.Class == upstream.ErrorClassTimeout {
			status = http.StatusGatewayTimeout
		}
		return p.errorResult(status, "upstream catalog API unreachable")
	}

	if !resp.OK() {
		return p.errorResult(resp.StatusCode, fmt.Sprintf("error calling upstream catalog API (status %d)", resp.StatusCode))
	}

	if !resp.IsJSON() {
		return p.passthrough(resp)
	}

	body, err := shapeJSON(resp.Body, t.params)
	if err != nil {
		p.logger.Warn().Err(err).Str("endpoint", t.path).Msg("Upstream returned unparseable JSON")
		return p.errorResult(http.StatusBadGateway, "upstream catalog API returned invalid JSON")
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	setCORS(header)

	return &result{
		entry:     cache.NewEntry(http.StatusOK, header, body, p.config.Policy, p.config.Clock()),
		status:    statusMiss,
		cacheable: true,
	}
}

// shapeJSON paginates a top-level array and re-serializes anything else as is.
func shapeJSON(raw []byte, params pagination.Params) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("invalid JSON body (%d bytes)", len(raw))
	}

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode collection: %w", err)
		}
		return json.Marshal(pagination.Paginate(items, params))
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("compact body: %w", err)
	}
	return buf.Bytes(), nil
}

// passthrough forwards a non-JSON success verbatim without caching it.
func (p *Proxy) passthrough(resp *upstream.Response) *result {
	contentType := resp.ContentType()
	if contentType == "" {
		contentType = "text/plain"
	}
	header := make(http.Header)
	header.Set("Content-Type", contentType)
	header.Set("Access-Control-Allow-Origin", "*")

	return &result{
		entry: &cache.Entry{
			Body:       resp.Body,
			StatusCode: resp.StatusCode,
			Header:     header,
		},
		status: statusBypass,
	}
}

func (p *Proxy) errorResult(status int, message string) *result {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Access-Control-Allow-Origin", "*")

	return &result{
		entry: &cache.Entry{
			Body:       errorJSON(status, message),
			StatusCode: status,
			Header:     header,
		},
		status: statusError,
	}
}
