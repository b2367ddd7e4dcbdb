// Package catalog is a typed client for the games catalog served by the
// edge proxy. Requests go through a client.RequestCache, so identical calls
// share one fetch and successful pages are reused for five minutes.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/catalog-proxy/pkg/cache"
	"github.com/Sternrassler/catalog-proxy/pkg/client"
	"github.com/Sternrassler/catalog-proxy/pkg/pagination"
	"github.com/Sternrassler/catalog-proxy/pkg/upstream"
)

// DefaultBaseURL is the edge proxy of a local deployment.
const DefaultBaseURL = "http://localhost:8080/api"

// Config holds the catalog client configuration.
type Config struct {
	// Upstream configures HTTP access to the proxy; BaseURL includes /api
	Upstream upstream.Config

	// Cache configures retry and TTL of the request cache
	Cache client.Config

	// Batch bounds the concurrency of AllGames
	Batch pagination.Config
}

// DefaultConfig returns a configuration pointing at a local proxy.
func DefaultConfig() Config {
	up := upstream.DefaultConfig()
	up.BaseURL = DefaultBaseURL
	return Config{
		Upstream: up,
		Cache:    client.DefaultConfig(),
		Batch:    pagination.DefaultConfig(),
	}
}

// GamesOptions selects a page of the catalog. Zero values mean page 1,
// 24 items per page and no filter.
type GamesOptions struct {
	Page     int
	PageSize int
	Platform Platform
	Category string
	SortBy   SortBy
}

// query renders the options with explicit pagination defaults.
func (o GamesOptions) query() url.Values {
	q := url.Values{}
	pagination.ParseParams(url.Values{
		pagination.ParamPage:     {strconv.Itoa(o.Page)},
		pagination.ParamPageSize: {strconv.Itoa(o.PageSize)},
	}).Apply(q)

	if o.Platform != "" {
		q.Set("platform", string(o.Platform))
	}
	if o.Category != "" {
		q.Set("category", o.Category)
	}
	if o.SortBy != "" {
		q.Set("sort-by", string(o.SortBy))
	}
	return q
}

// Client is the typed catalog client.
type Client struct {
	upstream *upstream.Client
	lists    *client.RequestCache[GameList]
	details  *client.RequestCache[GameDetail]
	batch    pagination.Config
	logger   zerolog.Logger
}

// New creates a catalog client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	up, err := upstream.New(cfg.Upstream, logger)
	if err != nil {
		return nil, fmt.Errorf("create upstream client: %w", err)
	}

	logger = logger.With().Str("component", "catalog-client").Logger()
	return &Client{
		upstream: up,
		lists:    client.NewRequestCache[GameList]("games", cfg.Cache, logger),
		details:  client.NewRequestCache[GameDetail]("game", cfg.Cache, logger),
		batch:    cfg.Batch,
		logger:   logger,
	}, nil
}

// Games returns one page of the catalog.
func (c *Client) Games(ctx context.Context, opts GamesOptions) (GameList, error) {
	q := opts.query()
	key := cache.NewRequestKey(http.MethodGet, "/games", q)

	return c.lists.GetWithCache(ctx, key, func(ctx context.Context) (GameList, error) {
		body, err := c.get(ctx, "/games", q)
		if err != nil {
			return GameList{}, err
		}
		return decodeGameList(body)
	})
}

// Game returns the full record of one game.
func (c *Client) Game(ctx context.Context, id int) (GameDetail, error) {
	q := url.Values{"id": {strconv.Itoa(id)}}
	key := cache.NewRequestKey(http.MethodGet, "/game", q)

	return c.details.GetWithCache(ctx, key, func(ctx context.Context) (GameDetail, error) {
		body, err := c.get(ctx, "/game", q)
		if err != nil {
			return GameDetail{}, err
		}

		var game GameDetail
		if err := json.Unmarshal(body, &game); err != nil {
			return GameDetail{}, fmt.Errorf("decode game %d: %w", id, err)
		}
		return game, nil
	})
}

// GamesOrEmpty is Games for views that render an empty page on failure.
// The error is logged and an empty list returned.
func (c *Client) GamesOrEmpty(ctx context.Context, opts GamesOptions) GameList {
	list, err := c.Games(ctx, opts)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Int("page", opts.Page).
			Str("platform", string(opts.Platform)).
			Str("category", opts.Category).
			Msg("Catalog unavailable, rendering empty page")
		return GameList{Items: []GameListItem{}}
	}
	return list
}

// AllGames fetches every page matching opts. opts.Page is ignored; page 1
// is fetched first to learn the total and the remaining pages follow
// concurrently.
func (c *Client) AllGames(ctx context.Context, opts GamesOptions) ([]GameListItem, error) {
	fetcher := pagination.NewBatchFetcher(func(ctx context.Context, p pagination.Params) (pagination.Window[GameListItem], error) {
		o := opts
		o.Page, o.PageSize = p.Page, p.PageSize

		list, err := c.Games(ctx, o)
		if err != nil {
			return pagination.Window[GameListItem]{}, err
		}
		return pagination.Window[GameListItem]{
			Page:     p.Page,
			PageSize: p.PageSize,
			Total:    list.Total,
			Items:    list.Items,
		}, nil
	}, c.batch)

	return fetcher.FetchAll(ctx, opts.PageSize)
}

// Invalidate drops the cached page selected by opts.
func (c *Client) Invalidate(opts GamesOptions) {
	c.lists.Invalidate(cache.NewRequestKey(http.MethodGet, "/games", opts.query()))
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	resp, err := c.upstream.Get(ctx, path, q.Encode())
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// decodeGameList accepts the paginated {items,total} shape and a bare array.
// Anything else decodes to an empty list.
func decodeGameList(body []byte) (GameList, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return GameList{Items: []GameListItem{}}, nil
	}

	switch trimmed[0] {
	case '[':
		var items []GameListItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return GameList{}, fmt.Errorf("decode games: %w", err)
		}
		return GameList{Items: items, Total: len(items)}, nil

	case '{':
		var page struct {
			Items []GameListItem `json:"items"`
			Total *int           `json:"total"`
		}
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return GameList{}, fmt.Errorf("decode games: %w", err)
		}
		if page.Items == nil {
			return GameList{Items: []GameListItem{}}, nil
		}
		list := GameList{Items: page.Items, Total: len(page.Items)}
		if page.Total != nil {
			list.Total = *page.Total
		}
		return list, nil
	}

	return GameList{Items: []GameListItem{}}, nil
}
