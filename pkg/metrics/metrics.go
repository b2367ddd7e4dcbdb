// Package metrics exposes the Prometheus registry of the catalog proxy.
// Metrics are defined with promauto in the packages that record them
// (cache, upstream, proxy, client) and all land in the default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package's promauto metrics land in.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(Registry, promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
}

// NewBuildInfoCollector returns a collector reporting the module version,
// registered once by the server binary.
func NewBuildInfoCollector() prometheus.Collector {
	return collectors.NewBuildInfoCollector()
}

// Metrics Documentation
//
// Edge Cache Metrics (pkg/cache):
//   - catalog_edge_cache_hits_total{store, state} (Counter): Hits by store (redis, memory) and state (fresh, stale)
//   - catalog_edge_cache_misses_total{store} (Counter): Misses, expired entries included
//   - catalog_edge_cache_entry_bytes{store} (Histogram): Stored body size
//   - catalog_edge_cache_errors_total{store, operation} (Counter): Store operation errors
//
// Upstream Metrics (pkg/upstream):
//   - catalog_upstream_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - catalog_upstream_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - catalog_upstream_errors_total{class} (Counter): Errors by class (client, server, network, timeout)
//
// Proxy Metrics (pkg/proxy):
//   - catalog_proxy_requests_total{cache_status} (Counter): Responses by X-Cache value
//   - catalog_proxy_coalesced_total (Counter): Requests that shared another request's upstream call
//   - catalog_proxy_cache_writes_total{result} (Counter): Background store writes (ok, error)
//   - catalog_proxy_revalidations_total{result} (Counter): Stale entry refreshes (refreshed, failed)
//
// Request Cache Metrics (pkg/client):
//   - catalog_client_cache_lookups_total{cache, result} (Counter): Lookups (hit, coalesced, miss)
//   - catalog_client_cache_failures_total{cache} (Counter): Failed fetches purged from the cache
//   - catalog_client_retries_total{cache} (Counter): Retry attempts
//   - catalog_client_retry_exhausted_total{cache} (Counter): Fetches that exhausted every attempt
//
// Example Prometheus Queries:
//
//   # Edge Hit Rate
//   sum(rate(catalog_proxy_requests_total{cache_status=~"HIT|STALE"}[5m])) /
//   sum(rate(catalog_proxy_requests_total[5m]))
//
//   # Upstream Error Rate
//   rate(catalog_upstream_errors_total[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(catalog_upstream_request_duration_seconds_bucket[5m]))
//
//   # Coalescing Ratio
//   rate(catalog_proxy_coalesced_total[5m]) / rate(catalog_proxy_requests_total{cache_status="MISS"}[5m])
