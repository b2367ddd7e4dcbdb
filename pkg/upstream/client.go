// Package upstream performs the network calls to the read-only catalog API.
// The client is stateless apart from an optional outbound rate limit and an
// optional cooldown gate.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for upstream calls.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// knownEndpoints are the catalog resources given their own metric series.
// Paths come from inbound clients, so anything else shares one label.
var knownEndpoints = map[string]bool{
	"games":  true,
	"game":   true,
	"filter": true,
}

// endpointLabel maps a request path to a bounded metric label: the first
// path segment when it is a known resource, "other" otherwise.
func endpointLabel(path string) string {
	seg := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	if knownEndpoints[seg] {
		return "/" + seg
	}
	return "other"
}

const (
	// DefaultBaseURL is the public FreeToGame API.
	DefaultBaseURL = "https://www.freetogame.com/api"

	// DefaultUserAgent identifies the proxy to the upstream API.
	DefaultUserAgent = "Free2Play-Proxy/1.0"

	// DefaultMaxBodyBytes bounds how much of an upstream body is read.
	DefaultMaxBodyBytes = 16 << 20
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is prepended to every request path
	BaseURL string

	// UserAgent is sent on every request
	UserAgent string

	// Timeout bounds a whole request, body included
	Timeout time.Duration

	// RequestsPerSecond limits outbound calls; 0 disables the limit
	RequestsPerSecond float64
	Burst             int

	// MaxBodyBytes bounds the size of a response body
	MaxBodyBytes int64

	// Gate delays calls during an upstream cooldown; nil disables it
	Gate Gate

	// HTTPClient overrides the transport (for testing)
	HTTPClient *http.Client
}

// Gate is consulted before each call and told about each response.
type Gate interface {
	Wait(ctx context.Context) error
	Observe(ctx context.Context, status int, header http.Header) error
}

// DefaultConfig returns the configuration used against the public API.
func DefaultConfig() Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		UserAgent:    DefaultUserAgent,
		Timeout:      30 * time.Second,
		Burst:        1,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ContentType returns the Content-Type header.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// IsJSON reports whether the content type is JSON (application/json or +json).
func (r *Response) IsJSON() bool {
	mediaType, _, err := mime.ParseMediaType(r.ContentType())
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// Err returns an *Error for non-2xx responses and nil otherwise.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &Error{
		StatusCode: r.StatusCode,
		Class:      ClassifyStatus(r.StatusCode),
		Message:    r.Status,
	}
}

// Client performs GET requests against the upstream API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates a new upstream client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests per second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		httpClient: httpClient,
		limiter:    limiter,
		config:     cfg,
		logger:     logger.With().Str("component", "upstream").Logger(),
	}, nil
}

// URL returns the upstream URL for a path and raw query.
func (c *Client) URL(path, rawQuery string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.config.BaseURL + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

// Get performs one GET request and reads the whole body. Transport failures
// are returned as *Error; any HTTP status, 2xx or not, is returned as a
// Response. Get never retries.
func (c *Client) Get(ctx context.Context, path, rawQuery string) (*Response, error) {
	start := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(endpointLabel(path)).Observe(time.Since(start).Seconds())
	}()

	if c.config.Gate != nil {
		if err := c.config.Gate.Wait(ctx); err != nil {
			return nil, c.transportError(path, fmt.Errorf("cooldown wait: %w", err))
		}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.transportError(path, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path, rawQuery), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", path).
		Str("query", rawQuery).
		Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))
	if err != nil {
		return nil, c.transportError(path, fmt.Errorf("read response body: %w", err))
	}
	if int64(len(body)) > c.config.MaxBodyBytes {
		return nil, c.transportError(path, fmt.Errorf("response body exceeds %d bytes", c.config.MaxBodyBytes))
	}

	upstreamRequestsTotal.WithLabelValues(endpointLabel(path), strconv.Itoa(resp.StatusCode)).Inc()
	if c.config.Gate != nil {
		if err := c.config.Gate.Observe(ctx, resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", path).Msg("Failed to record upstream cooldown")
		}
	}
	if class := ClassifyStatus(resp.StatusCode); class != "" {
		upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", path).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream request error")
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *Client) transportError(path string, err error) *Error {
	class := classifyTransport(err)
	upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
	upstreamRequestsTotal.WithLabelValues(endpointLabel(path), string(class)+"_error").Inc()

	c.logger.Error().Err(err).Str("endpoint", path).Str("error_class", string(class)).Msg("Upstream request failed")

	msg := "upstream request failed"
	if errors.Is(err, context.Canceled) {
		msg = "upstream request cancelled"
	}
	return &Error{Class: class, Message: msg, Err: err}
}
