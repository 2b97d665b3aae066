package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kjstillabower/city-weather-service/internal/models"
	"github.com/kjstillabower/city-weather-service/internal/observability"
)

// WeatherFetcher is implemented by the service layer. Used by CacheWarmer to avoid
// a circular dependency on the service package.
type WeatherFetcher interface {
	Fetch(ctx context.Context, city string, forecast bool) (models.Report, error)
}

// warmConcurrency bounds provider calls in flight during a warm.
const warmConcurrency = 4

// CacheWarmer prefetches current and forecast reports for a list of cities.
type CacheWarmer struct {
	fetcher WeatherFetcher
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher WeatherFetcher, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches both modes for each city, at most warmConcurrency at a time.
// Cities already cached cost one store read. Returns the joined per-city errors.
func (w *CacheWarmer) Warm(ctx context.Context, cities []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("cities", len(cities)))
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		sem  = semaphore.NewWeighted(warmConcurrency)
	)
	for _, city := range cities {
		for _, forecast := range []bool{false, true} {
			wg.Add(1)
			go func(city string, forecast bool) {
				defer wg.Done()
				err := sem.Acquire(ctx, 1)
				if err == nil {
					_, err = w.fetcher.Fetch(ctx, city, forecast)
					sem.Release(1)
				}
				if err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("warm %s (forecast=%t): %w", city, forecast, err))
					mu.Unlock()
				}
			}(city, forecast)
		}
	}
	wg.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("cities", len(cities)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}

// WarmPeriodic refreshes at the given interval until ctx is done. The initial warm is the caller's job.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, cities []string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, cities); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
