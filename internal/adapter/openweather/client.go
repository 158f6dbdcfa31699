package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/city-temperature-etl/internal/observability"
	"github.com/sony/gobreaker"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 512

// Client implements domain.WeatherLookup using the OpenWeatherMap current
// weather API. Requests are not retried.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	circuit    *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an OpenWeatherMap client.
func NewClient(apiKey string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		circuit: newBreaker(),
		metrics: metrics,
		logger:  logger,
	}
}

// newBreaker trips after consecutive failures. Client errors such as an
// unknown city do not count against it.
func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var le *domain.LookupError
			if errors.As(err, &le) {
				return le.Status < 500 && le.Status != http.StatusTooManyRequests
			}
			return err == nil
		},
	})
}

// CurrentTemperature returns the current temperature of city in °C.
func (c *Client) CurrentTemperature(ctx context.Context, city string) (float64, error) {
	start := time.Now()
	out, err := c.circuit.Execute(func() (interface{}, error) {
		return c.fetch(ctx, city)
	})
	c.metrics.LookupAPIDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.LookupRequests.WithLabelValues("error").Inc()
		c.logger.Warn("weather lookup failed", "city", city, "error", err)
		return 0, err
	}
	c.metrics.LookupRequests.WithLabelValues("success").Inc()
	return out.(float64), nil
}

func (c *Client) fetch(ctx context.Context, city string) (float64, error) {
	params := url.Values{
		"q":     {city},
		"appid": {c.apiKey},
		"units": {"metric"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, &domain.LookupError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if payload.Main.Temp == nil {
		return 0, errors.New("decode response: missing main.temp")
	}
	return *payload.Main.Temp, nil
}

// OpenWeatherMap API response types.

type response struct {
	Name string `json:"name"`
	Main struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
}
