package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/city-weather-service/internal/ratelimit"
)

// Cache backends accepted by CACHE_BACKEND / cache.backend.
const (
	BackendRedis     = "redis"
	BackendMemcached = "memcached"
	BackendInMemory  = "in_memory"
)

// Config holds service configuration loaded from .env, YAML and env.
type Config struct {
	ServerPort string

	APIKey            string
	APIBaseURL        string
	UnitGroup         string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration
	CacheBackend   string
	CacheCoalesce  bool

	RedisHost         string
	RedisPort         int
	RedisPassword     string
	RedisDB           int
	RedisDialTimeout  time.Duration
	RedisReadTimeout  time.Duration
	RedisWriteTimeout time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitEnabled      bool
	DefaultLimits         []ratelimit.Limit
	FormLimits            []ratelimit.Limit
	TrustForwardedHeaders bool

	CityMinLength int
	CityMaxLength int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	TrackedCities []string
	WarmCities    []string
	WarmInterval  time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL       string `yaml:"url"`
		UnitGroup string `yaml:"unit_group"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend  string `yaml:"backend"`
		Coalesce *bool  `yaml:"coalesce"`
		Redis    struct {
			Host         string `yaml:"host"`
			Port         int    `yaml:"port"`
			DB           int    `yaml:"db"`
			DialTimeout  string `yaml:"dial_timeout"`
			ReadTimeout  string `yaml:"read_timeout"`
			WriteTimeout string `yaml:"write_timeout"`
		} `yaml:"redis"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	RateLimits struct {
		Enabled               *bool    `yaml:"enabled"`
		Default               []string `yaml:"default"`
		Form                  []string `yaml:"form"`
		TrustForwardedHeaders bool     `yaml:"trust_forwarded_headers"`
	} `yaml:"rate_limits"`

	Validation struct {
		CityMinLength int `yaml:"city_min_length"`
		CityMaxLength int `yaml:"city_max_length"`
	} `yaml:"validation"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`

	Warm struct {
		Cities   []string `yaml:"cities"`
		Interval string   `yaml:"interval"`
	} `yaml:"warm"`
}

var (
	defaultLimits = []string{"200 per day", "50 per hour"}
	formLimits    = []string{"5 per minute"}
)

// Load reads .env (if present), then config/{ENV_NAME}.yaml (default dev, optional),
// then applies environment overrides. Call from project root.
// API_KEY and API_BASE_URL may be empty here; fetches then fail with a configuration error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	var fc fileConfig
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// env-only deployment
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.APIKey = strings.TrimSpace(os.Getenv("API_KEY"))
	cfg.APIBaseURL = firstNonEmpty(os.Getenv("API_BASE_URL"), fc.WeatherAPI.URL)
	cfg.UnitGroup = firstNonEmpty(fc.WeatherAPI.UnitGroup, "metric")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, BackendRedis))
	cfg.CacheCoalesce = true
	if fc.Cache.Coalesce != nil {
		cfg.CacheCoalesce = *fc.Cache.Coalesce
	}

	cfg.RedisHost = firstNonEmpty(os.Getenv("REDIS_HOST"), fc.Cache.Redis.Host, "localhost")
	cfg.RedisPort = fc.Cache.Redis.Port
	if cfg.RedisPort <= 0 {
		cfg.RedisPort = 6379
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_PORT")); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REDIS_PORT must be an integer, got %q", v)
		}
		cfg.RedisPort = p
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = fc.Cache.Redis.DB
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB must be an integer, got %q", v)
		}
		cfg.RedisDB = db
	}
	cfg.RedisDialTimeout = parseDuration(fc.Cache.Redis.DialTimeout, 2*time.Second)
	cfg.RedisReadTimeout = parseDuration(fc.Cache.Redis.ReadTimeout, 500*time.Millisecond)
	cfg.RedisWriteTimeout = parseDuration(fc.Cache.Redis.WriteTimeout, 500*time.Millisecond)

	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RateLimitEnabled = true
	if fc.RateLimits.Enabled != nil {
		cfg.RateLimitEnabled = *fc.RateLimits.Enabled
	}
	cfg.TrustForwardedHeaders = fc.RateLimits.TrustForwardedHeaders
	if cfg.DefaultLimits, err = parseLimitList(fc.RateLimits.Default, defaultLimits); err != nil {
		return nil, fmt.Errorf("rate_limits.default: %w", err)
	}
	if cfg.FormLimits, err = parseLimitList(fc.RateLimits.Form, formLimits); err != nil {
		return nil, fmt.Errorf("rate_limits.form: %w", err)
	}

	cfg.CityMinLength = fc.Validation.CityMinLength
	if cfg.CityMinLength <= 0 {
		cfg.CityMinLength = 1
	}
	cfg.CityMaxLength = fc.Validation.CityMaxLength
	if cfg.CityMaxLength <= 0 {
		cfg.CityMaxLength = 100
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.TrackedCities = fc.Metrics.TrackedCities
	cfg.WarmCities = fc.Warm.Cities
	cfg.WarmInterval = parseDurationOrZero(fc.Warm.Interval, 0)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RedisAddr returns host:port for the Redis client.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Missing lists required provider settings that are unset.
func (c *Config) Missing() []string {
	var out []string
	if c.APIKey == "" {
		out = append(out, "API_KEY")
	}
	if c.APIBaseURL == "" {
		out = append(out, "API_BASE_URL")
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func parseLimitList(vals, defaults []string) ([]ratelimit.Limit, error) {
	if len(vals) == 0 {
		vals = defaults
	}
	out := make([]ratelimit.Limit, 0, len(vals))
	for _, v := range vals {
		l, err := ratelimit.ParseLimit(v)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above
// WeatherAPITimeout so the provider call can finish inside the route timeout.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case BackendRedis, BackendMemcached, BackendInMemory:
	default:
		return fmt.Errorf("cache.backend must be redis, memcached or in_memory, got %q", cfg.CacheBackend)
	}
	if cfg.RedisPort <= 0 || cfg.RedisPort > 65535 {
		return fmt.Errorf("REDIS_PORT out of range: %d", cfg.RedisPort)
	}
	if cfg.CityMinLength > cfg.CityMaxLength {
		return fmt.Errorf("validation.city_min_length (%d) exceeds city_max_length (%d)", cfg.CityMinLength, cfg.CityMaxLength)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be <= 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
