//go:build openweather

package openweather

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/city-temperature-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real OpenWeatherMap API and require OPENWEATHER_API_KEY.
// Run with: go test -tags=openweather ./internal/adapter/openweather/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	key := os.Getenv("OPENWEATHER_API_KEY")
	if key == "" {
		t.Fatal("OPENWEATHER_API_KEY must be set to run smoke tests")
	}
	return &Client{
		apiKey:     key,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
		circuit:    newBreaker(),
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSmoke_CurrentTemperature(t *testing.T) {
	c := smokeClient(t)

	temp, err := c.CurrentTemperature(context.Background(), "London")
	require.NoError(t, err)
	assert.Greater(t, temp, -60.0)
	assert.Less(t, temp, 60.0)
	t.Logf("London: %.2f °C", temp)
}

func TestSmoke_UnknownCity(t *testing.T) {
	c := smokeClient(t)

	_, err := c.CurrentTemperature(context.Background(), "Qwxzyville Nonexistent")
	var le *domain.LookupError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, http.StatusNotFound, le.Status)
}
