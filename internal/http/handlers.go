package http

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather-service/internal/client"
	"github.com/kjstillabower/city-weather-service/internal/lifecycle"
	"github.com/kjstillabower/city-weather-service/internal/models"
	"github.com/kjstillabower/city-weather-service/internal/observability"
	"github.com/kjstillabower/city-weather-service/internal/service"
	"github.com/kjstillabower/city-weather-service/internal/traffic"
	"github.com/kjstillabower/city-weather-service/internal/validation"
)

//go:embed templates/index.html
var templateFS embed.FS

var formTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// WeatherFetcher is the cache-aside lookup the handlers serve from.
type WeatherFetcher interface {
	Fetch(ctx context.Context, city string, forecast bool) (models.Report, error)
}

// HealthConfig holds the thresholds and store check used by the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// StorePing, when set, checks reachability of the cache/rate-limit store.
	StorePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather          WeatherFetcher
	healthConfig     *HealthConfig
	logger           *zap.Logger
	cityMaxLen       int
	cityMinLen       int
	now              func() time.Time
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. cityMaxLen and cityMinLen bound accepted city names in runes.
func NewHandler(
	weather WeatherFetcher,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	cityMaxLen, cityMinLen int,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather:      weather,
		healthConfig: healthConfig,
		logger:       logger,
		cityMaxLen:   cityMaxLen,
		cityMinLen:   cityMinLen,
		now:          time.Now,
	}
}

// GetCurrent handles GET /weather/current?city=.
func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	report, err := h.weather.Fetch(r.Context(), city, false)
	if err != nil {
		writeFetchError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, report.Current(city))
}

// GetForecast handles GET /weather/forecast?city=&days=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	days, err := validation.ParseDays(r.URL.Query().Get("days"), 1)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.weather.Fetch(r.Context(), city, true)
	if err != nil {
		writeFetchError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, models.Forecast{City: city, Forecast: report.ForecastDays(days)})
}

// cityParam validates the city query parameter, writing a 400 when it is unusable.
func (h *Handler) cityParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	city, err := validation.ValidateCity(r.URL.Query().Get("city"), h.cityMinLen, h.cityMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return "", false
	}
	return city, true
}

// formPage is the data rendered by templates/index.html.
type formPage struct {
	City         string
	ForecastDays string
	Error        string
	Current      *models.CurrentWeather
	Forecast     []forecastRow
}

type forecastRow struct {
	Date       any
	TempMax    any
	TempMin    any
	Conditions any
}

// Form handles GET and POST /. GET renders the empty form; POST looks up the
// submitted city and renders current conditions or a forecast list.
func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.renderForm(w, r, formPage{})
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderForm(w, r, formPage{Error: "invalid form submission"})
		return
	}
	page := formPage{
		City:         strings.TrimSpace(r.PostForm.Get("city")),
		ForecastDays: strings.TrimSpace(r.PostForm.Get("forecast_days")),
	}

	days, err := validation.ParseDays(page.ForecastDays, 0)
	if err != nil {
		page.Error = err.Error()
		h.renderForm(w, r, page)
		return
	}
	city, err := validation.ValidateCity(page.City, h.cityMinLen, h.cityMaxLen)
	if err != nil {
		page.Error = err.Error()
		h.renderForm(w, r, page)
		return
	}

	forecast := days > 0
	report, err := h.weather.Fetch(r.Context(), city, forecast)
	if err != nil {
		traffic.RecordError()
		loggerFromRequest(r).Warn("form lookup failed", zap.String("city", city), zap.Error(err))
		page.Error = err.Error()
		h.renderForm(w, r, page)
		return
	}
	traffic.RecordSuccess()

	if forecast {
		page.Forecast = forecastRows(report.ForecastDays(days))
	} else {
		current := report.Current(city)
		if t, ok := current.Datetime.(string); ok && t != models.NoData {
			current.Datetime = h.now().Format("2006-01-02") + " " + t
		}
		page.Current = &current
	}
	h.renderForm(w, r, page)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, page formPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := formTemplate.Execute(w, page); err != nil {
		loggerFromRequest(r).Error("render form", zap.Error(err))
	}
}

func forecastRows(days []any) []forecastRow {
	rows := make([]forecastRow, 0, len(days))
	for _, d := range days {
		day, _ := d.(map[string]any)
		field := func(name string) any {
			if v, ok := day[name]; ok {
				return v
			}
			return models.NoData
		}
		rows = append(rows, forecastRow{
			Date:       field("datetime"),
			TempMax:    field("tempmax"),
			TempMin:    field("tempmin"),
			Conditions: field("conditions"),
		})
	}
	return rows
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if since, ok := lifecycle.ShutdownStartedAt(); ok {
		resp["shuttingDownSince"] = since.UTC().Format(time.RFC3339)
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > store unreachable > provider error rate > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := map[string]string{}
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, "", checks}
	}

	if h.healthConfig.StorePing != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.healthConfig.StorePing(pingCtx)
		cancel()
		if err != nil {
			checks["store"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "store_unreachable", checks}
		}
		checks["store"] = "healthy"
	}

	checks["weatherApi"] = "healthy"
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errCount, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 && float64(errCount)*100/float64(total) >= float64(h.healthConfig.DegradedErrorPct) {
			checks["weatherApi"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", checks}
		}
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeFetchError maps a Fetch failure to a response. Missing city is a client
// error; provider, configuration and parse failures are 500 with the message.
func writeFetchError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrCityRequired) {
		writeError(w, r, http.StatusBadRequest, service.ErrCityRequired.Error())
		return
	}
	traffic.RecordError()
	loggerFromRequest(r).Warn("weather fetch failed",
		zap.Error(err),
		zap.String("error_category", string(client.CategorizeError(err))),
	)
	writeError(w, r, http.StatusInternalServerError, fmt.Sprint(err))
}

// loggerFromRequest returns the request-scoped logger set by CorrelationIDMiddleware.
func loggerFromRequest(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}
