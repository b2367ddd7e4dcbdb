package pagination

import (
	"net/url"
	"strconv"
)

const (
	// DefaultPage is used when the page parameter is absent or invalid
	DefaultPage = 1

	// DefaultPageSize is used when the pageSize parameter is absent or invalid
	DefaultPageSize = 24

	// ParamPage is the query parameter holding the 1-based page number
	ParamPage = "page"

	// ParamPageSize is the query parameter holding the page size
	ParamPageSize = "pageSize"
)

// Params selects one page of a collection.
type Params struct {
	Page     int
	PageSize int
}

// DefaultParams returns page 1 with the default page size.
func DefaultParams() Params {
	return Params{Page: DefaultPage, PageSize: DefaultPageSize}
}

// ParseParams reads page and pageSize from a query. Missing, non-integer
// and non-positive values fall back to the defaults.
func ParseParams(query url.Values) Params {
	return Params{
		Page:     positiveInt(query.Get(ParamPage), DefaultPage),
		PageSize: positiveInt(query.Get(ParamPageSize), DefaultPageSize),
	}
}

// Canonicalize returns a copy of query with page and pageSize set to their
// effective values.
func Canonicalize(query url.Values) url.Values {
	p := ParseParams(query)

	out := make(url.Values, len(query)+2)
	for key, values := range query {
		out[key] = append([]string(nil), values...)
	}
	out.Set(ParamPage, strconv.Itoa(p.Page))
	out.Set(ParamPageSize, strconv.Itoa(p.PageSize))
	return out
}

// Apply writes the params into query.
func (p Params) Apply(query url.Values) {
	query.Set(ParamPage, strconv.Itoa(p.Page))
	query.Set(ParamPageSize, strconv.Itoa(p.PageSize))
}

// TotalPages returns how many pages of this size cover total items.
func (p Params) TotalPages(total int) int {
	if total <= 0 || p.PageSize <= 0 {
		return 0
	}
	return (total + p.PageSize - 1) / p.PageSize
}

// Window is one page of a collection. Total is the full collection length.
type Window[T any] struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
	Items    []T `json:"items"`
}

// Paginate returns the items in [(page-1)*pageSize, page*pageSize) clipped
// to the collection bounds. A page past the end yields no items.
func Paginate[T any](all []T, p Params) Window[T] {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}

	w := Window[T]{
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    len(all),
		Items:    []T{},
	}

	if p.Page-1 >= p.TotalPages(len(all)) {
		return w
	}

	start := (p.Page - 1) * p.PageSize
	end := len(all)
	if p.PageSize < end-start {
		end = start + p.PageSize
	}
	w.Items = all[start:end:end]
	return w
}

func positiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
