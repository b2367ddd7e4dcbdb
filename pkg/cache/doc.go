// Package cache provides the edge cache used by the catalog proxy.
//
// Entries are addressed by a RequestKey and carry their own freshness
// window (max-age) and grace window (stale-while-revalidate):
//
// - Fresh entries are served as is
// - Stale entries are served while the caller refreshes them in the background
// - Expired entries are reported as ErrCacheMiss
//
// # Basic Usage
//
//	// Shared store across proxy instances
//	store := cache.NewManager(redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	}))
//
//	// Or a store local to this process
//	store, err := cache.NewMemoryStore(cache.DefaultMemoryConfig())
//
//	key := cache.NewRequestKey("GET", "/games", url.Values{
//		"platform": []string{"pc"},
//		"page":     []string{"1"},
//	})
//
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from upstream, then
//		entry = cache.NewEntry(http.StatusOK, header, body, cache.DefaultPolicy(), time.Now())
//		_ = store.Set(ctx, key, entry)
//	}
//
// # Metrics
//
//   - catalog_edge_cache_hits_total{store,state} - Cache hits
//   - catalog_edge_cache_misses_total{store} - Cache misses
//   - catalog_edge_cache_entry_bytes{store} - Stored entry sizes
//   - catalog_edge_cache_errors_total{store,operation} - Store operation errors
//
// Only successful, parseable upstream responses are ever stored; the proxy
// never hands an error response to Set.
package cache
