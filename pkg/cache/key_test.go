package cache

import (
	"net/url"
	"testing"

	"pgregory.net/rapid"
)

func TestNewRequestKey_String(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		query  url.Values
		want   string
	}{
		{
			name:   "simple path no params",
			method: "GET",
			path:   "/games",
			want:   "GET /games",
		},
		{
			name: "empty method defaults to GET",
			path: "/games",
			want: "GET /games",
		},
		{
			name:   "method is upper-cased",
			method: "head",
			path:   "/games",
			want:   "HEAD /games",
		},
		{
			name:   "path is cleaned",
			method: "GET",
			path:   "games//list/",
			want:   "GET /games/list",
		},
		{
			name:   "empty path",
			method: "GET",
			path:   "",
			want:   "GET /",
		},
		{
			name:   "query params sorted",
			method: "GET",
			path:   "/games",
			query: url.Values{
				"platform": []string{"pc"},
				"page":     []string{"2"},
				"category": []string{"shooter"},
			},
			want: "GET /games?category=shooter&page=2&platform=pc",
		},
		{
			name:   "repeated values keep request order",
			method: "GET",
			path:   "/filter",
			query: url.Values{
				"tag": []string{"3d", "mmorpg"},
			},
			want: "GET /filter?tag=3d&tag=mmorpg",
		},
		{
			name:   "values are escaped",
			method: "GET",
			path:   "/games",
			query: url.Values{
				"sort-by": []string{"release date&x=1"},
			},
			want: "GET /games?sort-by=release+date%26x%3D1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewRequestKey(tt.method, tt.path, tt.query).String()
			if got != tt.want {
				t.Errorf("RequestKey.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequestKey_StorageKey(t *testing.T) {
	key := NewRequestKey("GET", "/game", url.Values{"id": []string{"452"}})
	want := "catalog:edge:GET /game?id=452"
	if got := key.StorageKey(); got != want {
		t.Errorf("StorageKey() = %q, want %q", got, want)
	}
}

// Same parameters inserted in any order produce the same key.
func TestRequestKey_OrderIndependent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		names := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-zA-Z_-]{1,8}`), 1, 8, rapid.ID[string]).Draw(rt, "names")
		values := make([]string, len(names))
		for i := range names {
			values[i] = rapid.StringMatching(`[ -~]{0,12}`).Draw(rt, "value")
		}
		perm := rapid.Permutation(indexes(len(names))).Draw(rt, "perm")

		forward := url.Values{}
		for i, name := range names {
			forward.Add(name, values[i])
		}
		shuffled := url.Values{}
		for _, i := range perm {
			shuffled.Add(names[i], values[i])
		}

		a := NewRequestKey("GET", "/games", forward)
		b := NewRequestKey("get", "/games/", shuffled)
		if a != b {
			rt.Fatalf("keys differ: %q vs %q", a.String(), b.String())
		}
	})
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
