package cache

import (
	"net/url"
	"path"
	"strings"
)

// KeyPrefix namespaces every edge entry in the backing store.
const KeyPrefix = "catalog:edge:"

// RequestKey identifies a cacheable request. It is shared by the edge cache
// and the client request cache, so both layers address the same request the
// same way.
type RequestKey struct {
	// Method is the upper-cased HTTP method (GET when empty)
	Method string

	// Path is the cleaned upstream path (e.g., "/games")
	Path string

	// Query is the encoded query string with keys sorted
	Query string
}

// NewRequestKey builds a RequestKey from a method, path and query parameters.
// Parameter insertion order never changes the result: keys are sorted, and
// the values of a repeated key keep their request order.
func NewRequestKey(method, p string, query url.Values) RequestKey {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "GET"
	}

	return RequestKey{
		Method: method,
		Path:   normalizePath(p),
		Query:  query.Encode(),
	}
}

// String generates a deterministic key string.
// Format: METHOD path?query
//
// Example:
//
//	GET /games?page=2&pageSize=24&platform=pc
func (k RequestKey) String() string {
	var b strings.Builder
	b.Grow(len(k.Method) + len(k.Path) + len(k.Query) + 2)
	b.WriteString(k.Method)
	b.WriteByte(' ')
	b.WriteString(k.Path)
	if k.Query != "" {
		b.WriteByte('?')
		b.WriteString(k.Query)
	}
	return b.String()
}

// StorageKey returns the key under which the entry is kept in a shared store.
func (k RequestKey) StorageKey() string {
	return KeyPrefix + k.String()
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
