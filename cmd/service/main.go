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

	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather-service/internal/cache"
	"github.com/kjstillabower/city-weather-service/internal/client"
	"github.com/kjstillabower/city-weather-service/internal/config"
	httphandler "github.com/kjstillabower/city-weather-service/internal/http"
	"github.com/kjstillabower/city-weather-service/internal/lifecycle"
	"github.com/kjstillabower/city-weather-service/internal/observability"
	"github.com/kjstillabower/city-weather-service/internal/ratelimit"
	"github.com/kjstillabower/city-weather-service/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if missing := cfg.Missing(); len(missing) > 0 {
		logger.Warn("provider not configured; weather lookups will fail", zap.Strings("missing", missing))
	}

	weatherClient := client.NewVisualCrossingClient(cfg.APIKey, cfg.APIBaseURL, cfg.UnitGroup, cfg.WeatherAPITimeout)

	be := newBackend(cfg)
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend), zap.String("addr", be.addr))
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := be.ping(pingCtx); err != nil {
		logger.Warn("store not reachable at startup; serving without cache", zap.Error(err))
	}
	pingCancel()

	weatherService := service.NewWeatherService(weatherClient, be.store, cfg.CacheCoalesce)

	handler := httphandler.NewHandler(weatherService, &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		StorePing:        be.ping,
	}, logger, cfg.CityMaxLength, cfg.CityMinLength)

	observability.RegisterTrafficGauges(cfg.DegradedWindow)
	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()
	if len(cfg.WarmCities) > 0 {
		warmer := cache.NewCacheWarmer(weatherService, logger)
		warmCtx, warmCancel := context.WithTimeout(appCtx, 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.WarmCities); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(appCtx, cfg.WarmCities, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	routerCfg := httphandler.RouterConfig{
		Logger:         logger,
		DefaultLimits:  cfg.DefaultLimits,
		FormLimits:     cfg.FormLimits,
		RequestTimeout: cfg.RequestTimeout,

		TrustForwardedHeaders: cfg.TrustForwardedHeaders,
	}
	if cfg.RateLimitEnabled {
		routerCfg.Limiter = be.limiter
	}
	router := httphandler.NewRouter(handler, routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	appCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(inFlight)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if err := be.close(); err != nil {
		logger.Error("store close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// backend is the weather store and the rate limiter built on the same connection.
type backend struct {
	store   cache.Store
	limiter ratelimit.Limiter
	ping    func(ctx context.Context) error
	close   func() error
	addr    string
}

func newBackend(cfg *config.Config) backend {
	switch cfg.CacheBackend {
	case config.BackendMemcached:
		mc := cache.NewMemcachedClient(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		store := cache.NewMemcachedStore(mc)
		return backend{
			store:   store,
			limiter: ratelimit.NewMemcachedLimiter(mc),
			ping:    store.Ping,
			close:   store.Close,
			addr:    cfg.MemcachedAddrs,
		}
	case config.BackendInMemory:
		store := cache.NewInMemoryStore()
		return backend{
			store:   store,
			limiter: ratelimit.NewMemoryLimiter(),
			ping:    store.Ping,
			close:   func() error { return nil },
			addr:    "process",
		}
	default:
		rc := cache.NewRedisClient(cache.RedisOptions{
			Host:         cfg.RedisHost,
			Port:         cfg.RedisPort,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  cfg.RedisDialTimeout,
			ReadTimeout:  cfg.RedisReadTimeout,
			WriteTimeout: cfg.RedisWriteTimeout,
		})
		store := cache.NewRedisStore(rc)
		return backend{
			store:   store,
			limiter: ratelimit.NewRedisLimiter(rc),
			ping:    store.Ping,
			close:   store.Close,
			addr:    cfg.RedisAddr(),
		}
	}
}
