package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel page requests
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
	// MaxPages bounds how many pages a reported total may require
	MaxPages int
}

// ErrTooManyPages is returned when the first page reports a total that would
// need more than MaxPages requests.
var ErrTooManyPages = errors.New("collection exceeds page limit")

// DefaultConfig returns a configuration gentle enough for the public proxy
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		MaxPages:       100,
	}
}

// PageFetcher fetches a single window of a collection
type PageFetcher[T any] func(ctx context.Context, p Params) (Window[T], error)

// BatchFetcher fetches every page of a windowed collection in parallel
type BatchFetcher[T any] struct {
	fetch  PageFetcher[T]
	config Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher[T any](fetch PageFetcher[T], config Config) *BatchFetcher[T] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 100
	}

	return &BatchFetcher[T]{
		fetch:  fetch,
		config: config,
	}
}

// FetchAll fetches page 1 to learn the total, then the remaining pages with
// at most MaxConcurrency requests in flight. Items are returned in collection
// order. Any failed page fails the whole call.
func (bf *BatchFetcher[T]) FetchAll(ctx context.Context, pageSize int) ([]T, error) {
	start := time.Now()
	params := Params{Page: 1, PageSize: pageSize}
	if params.PageSize < 1 {
		params.PageSize = DefaultPageSize
	}

	first, err := bf.fetchPage(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}

	totalPages := params.TotalPages(first.Total)
	if totalPages <= 1 {
		log.Debug().
			Int("total", first.Total).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return first.Items, nil
	}

	if totalPages > bf.config.MaxPages {
		return nil, fmt.Errorf("%w: total %d needs %d pages, limit %d",
			ErrTooManyPages, first.Total, totalPages, bf.config.MaxPages)
	}

	pages := make([][]T, totalPages)
	pages[0] = first.Items

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)
	for page := 2; page <= totalPages; page++ {
		g.Go(func() error {
			w, err := bf.fetchPage(gctx, Params{Page: page, PageSize: params.PageSize})
			if err != nil {
				log.Warn().Err(err).Int("page", page).Msg("Page fetch failed")
				return fmt.Errorf("fetch page %d: %w", page, err)
			}
			pages[page-1] = w.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	n := 0
	for _, items := range pages {
		n += len(items)
	}
	all := make([]T, 0, n)
	for _, items := range pages {
		all = append(all, items...)
	}

	log.Debug().
		Int("pages", totalPages).
		Int("items", len(all)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return all, nil
}

func (bf *BatchFetcher[T]) fetchPage(ctx context.Context, p Params) (Window[T], error) {
	ctx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()
	return bf.fetch(ctx, p)
}
