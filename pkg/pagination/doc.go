// Package pagination synthesizes page windows over full upstream collections
// and fetches every page of a windowed collection in parallel.
//
// The upstream catalog API returns whole collections; the proxy slices them:
//
//	params := pagination.ParseParams(r.URL.Query())  // page=1, pageSize=24 by default
//	window := pagination.Paginate(items, params)
//	// {"page":2,"pageSize":24,"total":50,"items":[...24 items...]}
//
// Both cache layers key requests on pagination.Canonicalize(query), which
// spells out the default page and pageSize, so an omitted parameter and an
// explicit default address the same entry.
//
// BatchFetcher walks all pages of a windowed collection:
//
//	fetcher := pagination.NewBatchFetcher[Game](pageFn, pagination.DefaultConfig())
//	all, err := fetcher.FetchAll(ctx, 100)
package pagination
