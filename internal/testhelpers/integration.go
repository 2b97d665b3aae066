//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/city-weather-service/internal/cache"
	"github.com/kjstillabower/city-weather-service/internal/client"
	"github.com/kjstillabower/city-weather-service/internal/ratelimit"
	"github.com/kjstillabower/city-weather-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIBaseURL    string
	CacheBackend  string // "redis" (default), "memcached" or "in_memory"
	RedisHost     string
	RedisPort     int
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if API_KEY or API_BASE_URL is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("API_KEY")
	baseURL := os.Getenv("API_BASE_URL")
	if apiKey == "" || baseURL == "" {
		t.Skip("API_KEY or API_BASE_URL not set, skipping integration test")
	}

	cfg := IntegrationTestConfig{
		APIKey:        apiKey,
		APIBaseURL:    baseURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     6379,
		MemcachedAddr: os.Getenv("MEMCACHED_ADDRS"),
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "redis"
	}
	if p, err := strconv.Atoi(os.Getenv("REDIS_PORT")); err == nil && p > 0 {
		cfg.RedisPort = p
	}
	if cfg.MemcachedAddr == "" {
		cfg.MemcachedAddr = "localhost:11211"
	}
	return cfg
}

// Stack is a store and matching limiter sharing one backend connection.
type Stack struct {
	Store   cache.Store
	Limiter ratelimit.Limiter
	Ping    func(ctx context.Context) error
}

// SetupStack connects to the configured backend. For redis, a live server at
// REDIS_HOST is used when reachable, else an in-process miniredis.
func SetupStack(t *testing.T, cfg IntegrationTestConfig) Stack {
	t.Helper()
	switch cfg.CacheBackend {
	case "memcached":
		mc := cache.NewMemcachedClient(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		store := cache.NewMemcachedStore(mc)
		if err := store.Ping(context.Background()); err != nil {
			t.Skipf("memcached not available at %s: %v", cfg.MemcachedAddr, err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return Stack{Store: store, Limiter: ratelimit.NewMemcachedLimiter(mc), Ping: store.Ping}
	case "in_memory":
		store := cache.NewInMemoryStore()
		return Stack{Store: store, Limiter: ratelimit.NewMemoryLimiter(), Ping: store.Ping}
	default:
		var rc *redis.Client
		if cfg.RedisHost != "" {
			rc = cache.NewRedisClient(cache.RedisOptions{Host: cfg.RedisHost, Port: cfg.RedisPort})
			if err := rc.Ping(context.Background()).Err(); err != nil {
				t.Logf("redis not reachable at %s:%d (%v), using miniredis", cfg.RedisHost, cfg.RedisPort, err)
				_ = rc.Close()
				rc = nil
			}
		}
		if rc == nil {
			mr := miniredis.RunT(t)
			rc = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		}
		store := cache.NewRedisStore(rc)
		t.Cleanup(func() { _ = store.Close() })
		return Stack{Store: store, Limiter: ratelimit.NewRedisLimiter(rc), Ping: store.Ping}
	}
}

// SetupIntegrationClient creates a provider client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) client.WeatherClient {
	t.Helper()
	return client.NewVisualCrossingClient(cfg.APIKey, cfg.APIBaseURL, "metric", 10*time.Second)
}

// SetupIntegrationService creates a WeatherService over the live provider and the configured store.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, Stack) {
	t.Helper()
	stack := SetupStack(t, cfg)
	return service.NewWeatherService(SetupIntegrationClient(t, cfg), stack.Store, true), stack
}
