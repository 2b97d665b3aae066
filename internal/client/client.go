package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/city-weather-service/internal/models"
	"github.com/kjstillabower/city-weather-service/internal/observability"
)

// WeatherClient fetches a single provider document. forecast selects include=forecast
// instead of include=current.
type WeatherClient interface {
	FetchWeather(ctx context.Context, city string, forecast bool) (models.Report, error)
}

// ErrConfiguration is returned when the provider base URL or API key is missing.
var ErrConfiguration = errors.New("weather provider not configured")

// ProviderError is returned when the provider answers with a non-200 status.
type ProviderError struct {
	StatusCode int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("error fetching weather data: provider returned HTTP %d", e.StatusCode)
}

// ParseError is returned when a 200 response body is not a JSON object.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse provider response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// VisualCrossingClient calls a timeline-style provider: GET {base}/{city}?unitGroup=&key=&include=.
// Each fetch is one attempt; there is no retry.
type VisualCrossingClient struct {
	apiKey    string
	baseURL   string
	unitGroup string
	client    *http.Client
}

// NewVisualCrossingClient returns a client. Missing apiKey or baseURL is reported by
// FetchWeather as ErrConfiguration so the failure surfaces per request.
func NewVisualCrossingClient(apiKey, baseURL, unitGroup string, timeout time.Duration) *VisualCrossingClient {
	if unitGroup == "" {
		unitGroup = "metric"
	}
	return &VisualCrossingClient{
		apiKey:    apiKey,
		baseURL:   baseURL,
		unitGroup: unitGroup,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchWeather issues one GET for city and returns the decoded document.
func (c *VisualCrossingClient) FetchWeather(ctx context.Context, city string, forecast bool) (models.Report, error) {
	if c.apiKey == "" || c.baseURL == "" {
		return nil, fmt.Errorf("%w: API_KEY and API_BASE_URL must be set", ErrConfiguration)
	}
	start := time.Now()

	req, err := c.buildRequest(ctx, city, forecast)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &ProviderError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	report, err := models.ParseReport(body)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return report, nil
}

func (c *VisualCrossingClient) buildRequest(ctx context.Context, city string, forecast bool) (*http.Request, error) {
	base, err := url.Parse(strings.TrimRight(c.baseURL, "/") + "/" + url.PathEscape(city))
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := base.Query()
	params.Set("unitGroup", c.unitGroup)
	params.Set("key", c.apiKey)
	params.Set("include", IncludeMode(forecast))
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// IncludeMode returns the provider include parameter for the mode.
func IncludeMode(forecast bool) string {
	if forecast {
		return "forecast"
	}
	return "current"
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
