package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/city-weather-service/internal/ratelimit"
)

var envKeys = []string{
	"API_KEY", "API_BASE_URL", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB",
	"CACHE_BACKEND", "MEMCACHED_ADDRS", "PORT", "ENV_NAME",
}

// isolate clears config env vars and switches to an empty temp dir for the test.
func isolate(t *testing.T) string {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	return dir
}

func TestLoad_DefaultsWithoutFiles(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.CacheBackend != BackendRedis {
		t.Errorf("CacheBackend = %q, want redis", cfg.CacheBackend)
	}
	if cfg.RedisAddr() != "localhost:6379" {
		t.Errorf("RedisAddr() = %q, want localhost:6379", cfg.RedisAddr())
	}
	if !cfg.CacheCoalesce {
		t.Error("CacheCoalesce = false, want true by default")
	}
	if cfg.TrustForwardedHeaders {
		t.Error("TrustForwardedHeaders = true, want false by default")
	}
	if cfg.UnitGroup != "metric" {
		t.Errorf("UnitGroup = %q, want metric", cfg.UnitGroup)
	}
	if cfg.WeatherAPITimeout != 10*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want 10s", cfg.WeatherAPITimeout)
	}
	wantDefault := []ratelimit.Limit{{Count: 200, Period: 24 * time.Hour}, {Count: 50, Period: time.Hour}}
	if len(cfg.DefaultLimits) != 2 || cfg.DefaultLimits[0] != wantDefault[0] || cfg.DefaultLimits[1] != wantDefault[1] {
		t.Errorf("DefaultLimits = %v, want %v", cfg.DefaultLimits, wantDefault)
	}
	if len(cfg.FormLimits) != 1 || cfg.FormLimits[0] != (ratelimit.Limit{Count: 5, Period: time.Minute}) {
		t.Errorf("FormLimits = %v, want [5 per minute]", cfg.FormLimits)
	}
	if !cfg.RateLimitEnabled {
		t.Error("RateLimitEnabled = false, want true by default")
	}
	if got := cfg.Missing(); len(got) != 2 {
		t.Errorf("Missing() = %v, want API_KEY and API_BASE_URL", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("API_KEY", "test-key")
	t.Setenv("API_BASE_URL", "https://weather.example.com/timeline")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("CACHE_BACKEND", "Memcached")
	t.Setenv("MEMCACHED_ADDRS", "mc1:11211,mc2:11211")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIKey != "test-key" || cfg.APIBaseURL != "https://weather.example.com/timeline" {
		t.Errorf("provider = %q %q", cfg.APIKey, cfg.APIBaseURL)
	}
	if cfg.RedisAddr() != "redis.internal:6380" || cfg.RedisDB != 2 || cfg.RedisPassword != "secret" {
		t.Errorf("redis = %s db=%d pw=%q", cfg.RedisAddr(), cfg.RedisDB, cfg.RedisPassword)
	}
	if cfg.CacheBackend != BackendMemcached {
		t.Errorf("CacheBackend = %q, want memcached", cfg.CacheBackend)
	}
	if cfg.MemcachedAddrs != "mc1:11211,mc2:11211" {
		t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if len(cfg.Missing()) != 0 {
		t.Errorf("Missing() = %v, want none", cfg.Missing())
	}
}

func TestLoad_InvalidRedisPort(t *testing.T) {
	for _, port := range []string{"abc", "70000", "0"} {
		t.Run(port, func(t *testing.T) {
			isolate(t)
			t.Setenv("REDIS_PORT", port)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REDIS_PORT") {
				t.Errorf("Load() error = %v, want REDIS_PORT error", err)
			}
		})
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := isolate(t)
	content := "API_KEY=from-dotenv\nAPI_BASE_URL=https://dotenv.example.com\nREDIS_HOST=dotenv-redis\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("REDIS_HOST", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIKey != "from-dotenv" {
		t.Errorf("APIKey = %q, want value from .env", cfg.APIKey)
	}
	if cfg.RedisHost != "from-env" {
		t.Errorf("RedisHost = %q, want process env to win over .env", cfg.RedisHost)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := isolate(t)
	t.Setenv("ENV_NAME", "prod")
	writeEnvFile(t, dir, "prod", `
server:
  port: "8181"
weather_api:
  url: "https://yaml.example.com"
  unit_group: "us"
  timeout: "3s"
request:
  timeout: "2s"
cache:
  backend: "in_memory"
  coalesce: false
rate_limits:
  default: ["100 per day"]
  form: ["2/minute", "10 per hour"]
  trust_forwarded_headers: true
validation:
  city_max_length: 60
health:
  degraded_window: "2m"
  degraded_error_pct: 20
metrics:
  tracked_cities: ["London", "Paris"]
warm:
  cities: ["London"]
  interval: "30m"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "8181" || cfg.APIBaseURL != "https://yaml.example.com" || cfg.UnitGroup != "us" {
		t.Errorf("server/provider = %q %q %q", cfg.ServerPort, cfg.APIBaseURL, cfg.UnitGroup)
	}
	if cfg.RequestTimeout != 4*time.Second {
		t.Errorf("RequestTimeout = %v, want raised to provider timeout + 1s", cfg.RequestTimeout)
	}
	if cfg.CacheBackend != BackendInMemory || cfg.CacheCoalesce {
		t.Errorf("cache = %q coalesce=%v", cfg.CacheBackend, cfg.CacheCoalesce)
	}
	if len(cfg.DefaultLimits) != 1 || len(cfg.FormLimits) != 2 || !cfg.TrustForwardedHeaders {
		t.Errorf("limits = %v / %v trust=%v", cfg.DefaultLimits, cfg.FormLimits, cfg.TrustForwardedHeaders)
	}
	if cfg.CityMaxLength != 60 {
		t.Errorf("CityMaxLength = %d, want 60", cfg.CityMaxLength)
	}
	if cfg.DegradedWindow != 2*time.Minute || cfg.DegradedErrorPct != 20 {
		t.Errorf("health = %v %d", cfg.DegradedWindow, cfg.DegradedErrorPct)
	}
	if len(cfg.TrackedCities) != 2 || len(cfg.WarmCities) != 1 || cfg.WarmInterval != 30*time.Minute {
		t.Errorf("tracked=%v warm=%v interval=%v", cfg.TrackedCities, cfg.WarmCities, cfg.WarmInterval)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	dir := isolate(t)
	writeEnvFile(t, dir, "dev", `
weather_api:
  timeout: "not-a-duration"
`)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPITimeout != 10*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want default 10s", cfg.WeatherAPITimeout)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"zero provider timeout", "weather_api:\n  timeout: \"0s\"\n", "weather_api.timeout"},
		{"unknown backend", "cache:\n  backend: \"etcd\"\n", "cache.backend"},
		{"bad limit", "rate_limits:\n  form: [\"lots per minute\"]\n", "rate_limits.form"},
		{"min over max", "validation:\n  city_min_length: 10\n  city_max_length: 5\n", "city_min_length"},
		{"pct over 100", "health:\n  degraded_error_pct: 150\n", "degraded_error_pct"},
		{"invalid yaml", "server: [\n", "parse config file"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := isolate(t)
			writeEnvFile(t, dir, "dev", tc.yaml)
			cfg, err := Load()
			if err == nil {
				t.Fatalf("Load() = %+v, want error", cfg)
			}
			if cfg != nil {
				t.Errorf("Load() config = %+v, want nil on error", cfg)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load() error = %v, want message containing %q", err, tc.want)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	if got := parseDuration("", time.Second); got != time.Second {
		t.Errorf("empty = %v", got)
	}
	if got := parseDuration("0s", time.Second); got != time.Second {
		t.Errorf("zero = %v", got)
	}
	if got := parseDuration("250ms", time.Second); got != 250*time.Millisecond {
		t.Errorf("valid = %v", got)
	}
	if got := parseDurationOrZero("0s", time.Second); got != 0 {
		t.Errorf("parseDurationOrZero zero = %v, want 0", got)
	}
}

func writeEnvFile(t *testing.T, dir, env, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, env+".yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}
