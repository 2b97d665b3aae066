package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather-service/internal/observability"
	"github.com/kjstillabower/city-weather-service/internal/ratelimit"
)

// Rate-limit scopes; counters for different scopes never share a key.
const (
	ScopeGlobal = "global"
	ScopeForm   = "form"
)

// RouterConfig carries the middleware settings for NewRouter.
type RouterConfig struct {
	Logger         *zap.Logger
	Limiter        ratelimit.Limiter // nil disables rate limiting
	DefaultLimits  []ratelimit.Limit
	FormLimits     []ratelimit.Limit
	RequestTimeout time.Duration

	// TrustForwardedHeaders takes the client address from X-Forwarded-For /
	// X-Real-IP. Enable only behind a proxy that overwrites those headers.
	TrustForwardedHeaders bool
}

// NewRouter wires the handlers. /health and /metrics bypass rate limiting;
// every other route counts against DefaultLimits, and the form also against FormLimits.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	if cfg.TrustForwardedHeaders {
		router.Use(middleware.RealIP)
	}
	router.Use(middleware.Recoverer)
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	app := router.NewRoute().Subrouter()
	app.Use(RateLimitMiddleware(cfg.Limiter, ScopeGlobal, cfg.DefaultLimits))

	weather := app.PathPrefix("/weather").Subrouter()
	if cfg.RequestTimeout > 0 {
		weather.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	weather.HandleFunc("/current", h.GetCurrent).Methods(http.MethodGet)
	weather.HandleFunc("/forecast", h.GetForecast).Methods(http.MethodGet)

	form := RateLimitMiddleware(cfg.Limiter, ScopeForm, cfg.FormLimits)(http.HandlerFunc(h.Form))
	app.Handle("/", form).Methods(http.MethodGet, http.MethodPost)

	return router
}
