package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/catalog-proxy/internal/config"
	"github.com/Sternrassler/catalog-proxy/pkg/cache"
	"github.com/Sternrassler/catalog-proxy/pkg/logging"
	"github.com/Sternrassler/catalog-proxy/pkg/metrics"
	"github.com/Sternrassler/catalog-proxy/pkg/proxy"
	"github.com/Sternrassler/catalog-proxy/pkg/ratelimit"
	"github.com/Sternrassler/catalog-proxy/pkg/upstream"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// run serves until ctx is cancelled, then shuts down gracefully and waits for
// pending cache writes.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	redisClient, err := newRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	store, err := newStore(cfg, redisClient, logger)
	if err != nil {
		return err
	}

	up, err := upstream.New(upstream.Config{
		BaseURL:           cfg.Upstream.BaseURL,
		UserAgent:         cfg.Upstream.UserAgent,
		Timeout:           cfg.Upstream.Timeout,
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
		Burst:             1,
		Gate:              ratelimit.NewTracker(redisClient, ratelimit.DefaultConfig(), logger),
	}, logger)
	if err != nil {
		return fmt.Errorf("create upstream client: %w", err)
	}

	p := proxy.New(proxy.Config{
		Policy: cache.Policy{
			MaxAge:               cfg.Cache.MaxAge,
			StaleWhileRevalidate: cfg.Cache.StaleWhileRevalidate,
		},
		PathPrefix:   "/api",
		WriteTimeout: cfg.Cache.WriteTimeout,
	}, store, up, logger)

	servers := []*http.Server{{
		Addr:              cfg.Addr(),
		Handler:           newRouter(p, store, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.MetricsAddr != "" {
		if err := metrics.Registry.Register(metrics.NewBuildInfoCollector()); err != nil {
			logger.Warn().Err(err).Msg("Build info collector not registered")
		}
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newMetricsRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info().Str("addr", srv.Addr).Msg("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	logger.Info().
		Str("upstream", cfg.Upstream.BaseURL).
		Str("user_agent", cfg.Upstream.UserAgent).
		Bool("redis", cfg.UseRedis()).
		Msg("Catalog proxy started")

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		p.Close()
		return errors.Join(errs...)
	})

	return g.Wait()
}

// newRedis connects to REDIS_URL, which may be a redis:// URL or a bare
// host:port. It returns nil when no redis is configured.
func newRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	if !cfg.UseRedis() {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.Cache.RedisURL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.Cache.RedisURL}
	}
	redisClient := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return redisClient, nil
}

// newStore selects the redis store when a client is given and the in-process
// store otherwise.
func newStore(cfg *config.Config, redisClient *redis.Client, logger zerolog.Logger) (cache.Store, error) {
	if redisClient != nil {
		return cache.NewManager(redisClient), nil
	}

	mc := cache.DefaultMemoryConfig()
	mc.Capacity = cfg.Cache.MemoryCapacity
	mc.TTL = cfg.Cache.MaxAge + cfg.Cache.StaleWhileRevalidate
	store, err := cache.NewMemoryStore(mc)
	if err != nil {
		return nil, fmt.Errorf("create memory store: %w", err)
	}
	logger.Info().Int("capacity", mc.Capacity).Msg("Using in-process edge cache")
	return store, nil
}

func newRouter(p *proxy.Proxy, store cache.Store, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(logging.AccessLog(logger))
	r.Use(middleware.Recoverer)

	r.Get("/ready", readyHandler(store))
	r.Handle("/*", p)
	return r
}

func newMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	return r
}

// pinger is implemented by stores backed by a remote service.
type pinger interface {
	Ping(ctx context.Context) error
}

func readyHandler(store cache.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pg, ok := store.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := pg.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, "Redis unavailable: %v", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}
