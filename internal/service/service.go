package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/city-weather-service/internal/cache"
	"github.com/kjstillabower/city-weather-service/internal/client"
	"github.com/kjstillabower/city-weather-service/internal/models"
	"github.com/kjstillabower/city-weather-service/internal/observability"
)

// EntryTTL is how long a provider response stays in the store (43200 s).
const EntryTTL = 12 * time.Hour

// ErrCityRequired is returned when the city is empty after trimming.
var ErrCityRequired = errors.New("City parameter is required")

// WeatherService serves provider reports through a cache-aside store.
type WeatherService struct {
	client   client.WeatherClient
	store    cache.Store
	coalesce bool
	group    singleflight.Group
}

// NewWeatherService creates a WeatherService. With coalesce set, concurrent
// misses for one key share a single provider call.
func NewWeatherService(client client.WeatherClient, store cache.Store, coalesce bool) *WeatherService {
	return &WeatherService{
		client:   client,
		store:    store,
		coalesce: coalesce,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return zap.NewNop()
}

// CacheKey returns the store key for city in the given mode: weather:<city>:<True|False>.
func CacheKey(city string, forecast bool) string {
	flag := "False"
	if forecast {
		flag = "True"
	}
	return "weather:" + city + ":" + flag
}

// Mode returns the metric label for a fetch mode.
func Mode(forecast bool) string {
	if forecast {
		return "forecast"
	}
	return "current"
}

// Fetch returns the provider report for city, from the store when present.
// A stored entry that does not parse is deleted and refetched.
func (s *WeatherService) Fetch(ctx context.Context, city string, forecast bool) (models.Report, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, ErrCityRequired
	}
	key := CacheKey(city, forecast)
	mode := Mode(forecast)
	logger := loggerFromContext(ctx).With(zap.String("cache_key", key))
	observability.RecordWeatherQuery(city, mode)

	if report, ok := s.lookup(ctx, key, logger); ok {
		observability.CacheHitsTotal.WithLabelValues(mode).Inc()
		logger.Debug("cache hit")
		return report, nil
	}
	observability.CacheMissesTotal.WithLabelValues(mode).Inc()
	logger.Debug("cache miss, fetching from provider")

	if !s.coalesce {
		return s.fetchAndStore(ctx, key, city, forecast)
	}

	// The shared call outlives any single caller; each waiter honours its own ctx.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.fetchAndStore(shared, key, city, forecast)
	})
	select {
	case res := <-ch:
		if res.Shared {
			observability.RequestCoalescingHitsTotal.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(models.Report), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch weather for %s: %w", city, ctx.Err())
	}
}

// lookup reads key from the store. Read errors and corrupt entries count as misses.
func (s *WeatherService) lookup(ctx context.Context, key string, logger *zap.Logger) (models.Report, bool) {
	start := time.Now()
	text, ok, err := s.store.Get(ctx, key)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(elapsed)
		logger.Warn("cache get failed", zap.Error(err))
		return nil, false
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(elapsed)
	if !ok {
		return nil, false
	}

	report, err := models.ParseReport([]byte(text))
	if err == nil {
		return report, true
	}
	observability.CacheCorruptionsTotal.Inc()
	logger.Warn("corrupt cache entry, deleting", zap.Error(err))
	if delErr := s.store.Delete(ctx, key); delErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("delete", categorizeCacheError(delErr)).Inc()
		logger.Warn("cache delete failed", zap.Error(delErr))
	}
	return nil, false
}

// fetchAndStore calls the provider once and writes a successful report back with EntryTTL.
func (s *WeatherService) fetchAndStore(ctx context.Context, key, city string, forecast bool) (models.Report, error) {
	logger := loggerFromContext(ctx).With(zap.String("cache_key", key))
	report, err := s.client.FetchWeather(ctx, city, forecast)
	if err != nil {
		return nil, fmt.Errorf("fetch weather for %s: %w", city, err)
	}

	payload, err := json.Marshal(report)
	if err != nil {
		logger.Warn("encode report for cache failed", zap.Error(err))
		return report, nil
	}
	start := time.Now()
	if err := s.store.Set(ctx, key, string(payload), EntryTTL); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(start).Seconds())
		logger.Warn("cache set failed", zap.Error(err))
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(start).Seconds())
	}
	return report, nil
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, canceled, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") || strings.Contains(errStr, "refused") {
		return "connection"
	}
	return "unknown"
}
