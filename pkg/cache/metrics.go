package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks edge cache hits by store and freshness state
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_edge_cache_hits_total",
			Help: "Total number of edge cache hits",
		},
		[]string{"store", "state"}, // "redis"|"memory", "fresh"|"stale"
	)

	// CacheMisses tracks edge cache misses by store
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_edge_cache_misses_total",
			Help: "Total number of edge cache misses",
		},
		[]string{"store"},
	)

	// EntrySize tracks the size of stored entries in bytes
	EntrySize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_edge_cache_entry_bytes",
			Help:    "Size of edge cache entries in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"store"},
	)

	// CacheErrors tracks store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_edge_cache_errors_total",
			Help: "Total number of edge cache operation errors",
		},
		[]string{"store", "operation"}, // "get", "set", "delete"
	)
)
