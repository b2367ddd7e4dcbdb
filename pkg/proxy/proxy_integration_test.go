//go:build integration

package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/catalog-proxy/internal/testutil"
	"github.com/Sternrassler/catalog-proxy/pkg/cache"
	"github.com/Sternrassler/catalog-proxy/pkg/ratelimit"
	"github.com/Sternrassler/catalog-proxy/pkg/upstream"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() {
		_ = redisClient.Close()
		_ = container.Terminate(ctx)
	})
	return redisClient
}

// newInstance starts one proxy process sharing redisClient.
func newInstance(t *testing.T, redisClient *redis.Client, mock *testutil.MockCatalog) (*httptest.Server, *Proxy) {
	t.Helper()

	upCfg := upstream.DefaultConfig()
	upCfg.BaseURL = mock.URL()
	upCfg.Gate = ratelimit.NewTracker(redisClient, ratelimit.DefaultConfig(), zerolog.Nop())
	up, err := upstream.New(upCfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create upstream client: %v", err)
	}

	p := New(DefaultConfig(), cache.NewManager(redisClient), up, zerolog.Nop())
	srv := httptest.NewServer(p)
	t.Cleanup(func() {
		srv.Close()
		p.Close()
	})
	return srv, p
}

func fetch(t *testing.T, url string) (*http.Response, string) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

// TestSharedEdgeCache checks that a response cached by one instance is served
// by another: miss, async store write, hit.
func TestSharedEdgeCache(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetGames(50)

	first, firstProxy := newInstance(t, redisClient, mock)
	second, _ := newInstance(t, redisClient, mock)

	resp1, body1 := fetch(t, first.URL+"/api/games?page=2")
	if resp1.StatusCode != http.StatusOK {
		t.Fatalf("Request 1 status = %d, want %d", resp1.StatusCode, http.StatusOK)
	}
	if got := resp1.Header.Get("X-Cache"); got != "MISS" {
		t.Errorf("Request 1 X-Cache = %s, want MISS", got)
	}

	firstProxy.Wait()

	resp2, body2 := fetch(t, second.URL+"/api/games?pageSize=24&page=2")
	if got := resp2.Header.Get("X-Cache"); got != "HIT" {
		t.Errorf("Request 2 X-Cache = %s, want HIT", got)
	}
	if body1 != body2 {
		t.Errorf("Bodies differ:\n%s\n%s", body1, body2)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("Upstream requests = %d, want 1", mock.GetRequestCount())
	}
}

// TestUpstreamErrorsNotShared checks that a failure seen by one instance is
// not cached for the other.
func TestUpstreamErrorsNotShared(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse("/games", testutil.NewServerErrorResponse(http.StatusServiceUnavailable))

	first, firstProxy := newInstance(t, redisClient, mock)
	second, _ := newInstance(t, redisClient, mock)

	resp, _ := fetch(t, first.URL+"/api/games")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", resp.StatusCode)
	}
	firstProxy.Wait()

	mock.SetGames(3)
	resp, _ = fetch(t, second.URL+"/api/games")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("Upstream requests = %d, want 2", mock.GetRequestCount())
	}
}

// TestCooldownShared checks that a 429 seen by one instance delays the next
// upstream call of another.
func TestCooldownShared(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetSequence("/games",
		testutil.NewRateLimitResponse(),
		testutil.NewJSONResponse(testutil.GamesJSON(1)),
	)

	first, _ := newInstance(t, redisClient, mock)
	second, _ := newInstance(t, redisClient, mock)

	resp, _ := fetch(t, first.URL+"/api/games")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Status = %d, want 429", resp.StatusCode)
	}

	start := time.Now()
	resp, _ = fetch(t, second.URL+"/api/games")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Errorf("Second instance did not wait for the cooldown (took %v)", elapsed)
	}
}
