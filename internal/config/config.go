// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Config holds all application configuration
type Config struct {
	// Port is the listen port of the proxy
	Port string `env:"PORT" envDefault:"8080"`

	// MetricsAddr is the listen address of the metrics server; empty disables it
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	Upstream UpstreamConfig
	Cache    CacheConfig
	Log      LogConfig
}

// UpstreamConfig holds the upstream catalog API configuration
type UpstreamConfig struct {
	BaseURL           string        `env:"UPSTREAM_BASE_URL" envDefault:"https://www.freetogame.com/api"`
	UserAgent         string        `env:"USER_AGENT" envDefault:"Free2Play-Proxy/1.0"`
	Timeout           time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
	RequestsPerSecond float64       `env:"UPSTREAM_RPS" envDefault:"0"`
}

// CacheConfig holds the edge cache configuration
type CacheConfig struct {
	// RedisURL selects the redis store; empty means the in-process store
	RedisURL             string        `env:"REDIS_URL"`
	MaxAge               time.Duration `env:"CACHE_MAX_AGE" envDefault:"600s"`
	StaleWhileRevalidate time.Duration `env:"CACHE_STALE_WHILE_REVALIDATE" envDefault:"60s"`
	WriteTimeout         time.Duration `env:"CACHE_WRITE_TIMEOUT" envDefault:"5s"`
	MemoryCapacity       int           `env:"MEMORY_CACHE_CAPACITY" envDefault:"10000"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load reads configuration from the process environment
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom reads configuration from the given variables only
func LoadFrom(environ map[string]string) (*Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// Addr returns the listen address of the proxy
func (c *Config) Addr() string {
	return ":" + c.Port
}

// UseRedis reports whether the redis store is configured
func (c *Config) UseRedis() bool {
	return c.Cache.RedisURL != ""
}

// Validate checks value ranges that the parser cannot express
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be between 1-65535, got %q", c.Port)
	}

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL must be an absolute http(s) URL, got %q", c.Upstream.BaseURL)
	}
	if c.Upstream.UserAgent == "" {
		return fmt.Errorf("USER_AGENT must not be empty")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", c.Upstream.Timeout)
	}
	if c.Upstream.RequestsPerSecond < 0 {
		return fmt.Errorf("UPSTREAM_RPS must be >= 0, got %v", c.Upstream.RequestsPerSecond)
	}

	if c.Cache.MaxAge <= 0 {
		return fmt.Errorf("CACHE_MAX_AGE must be positive, got %s", c.Cache.MaxAge)
	}
	if c.Cache.StaleWhileRevalidate < 0 {
		return fmt.Errorf("CACHE_STALE_WHILE_REVALIDATE must be >= 0, got %s", c.Cache.StaleWhileRevalidate)
	}
	if c.Cache.WriteTimeout <= 0 {
		return fmt.Errorf("CACHE_WRITE_TIMEOUT must be positive, got %s", c.Cache.WriteTimeout)
	}
	if !c.UseRedis() && c.Cache.MemoryCapacity <= 0 {
		return fmt.Errorf("MEMORY_CACHE_CAPACITY must be positive, got %d", c.Cache.MemoryCapacity)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return nil
}
