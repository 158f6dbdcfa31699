package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoBaseline is returned when no seasonal statistics exist for a city in
// the requested season.
var ErrNoBaseline = errors.New("no seasonal baseline")

// WeatherLookup fetches the current temperature for a city.
type WeatherLookup interface {
	CurrentTemperature(ctx context.Context, city string) (float64, error)
}

// LookupError is a non-success response from a weather provider.
type LookupError struct {
	Status int
	Body   string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("weather lookup failed: status %d", e.Status)
}

// Comparison places a live temperature against a city's seasonal baseline.
type Comparison struct {
	City        string    `json:"city"`
	Season      Season    `json:"season"`
	Current     float64   `json:"current"`
	Mean        float64   `json:"mean"`
	Std         float64   `json:"std"`
	NormalLow   float64   `json:"normal_low"`
	NormalHigh  float64   `json:"normal_high"`
	AnomalyLow  float64   `json:"anomaly_low"`
	AnomalyHigh float64   `json:"anomaly_high"`
	IsAnomaly   bool      `json:"is_anomaly"`
	ObservedAt  time.Time `json:"observed_at"`
}

// CompareCurrent compares current against the summary row for city in the
// season of at. The normal range is mean ± one std rounded to two decimals;
// the anomaly bounds use the same threshold as per-record classification.
func CompareCurrent(city string, current float64, at time.Time, summary []SummaryRow) (Comparison, error) {
	season := SeasonAt(at)
	row, ok := FindSummary(summary, city, season)
	if !ok {
		return Comparison{}, fmt.Errorf("%s in %s: %w", city, season, ErrNoBaseline)
	}

	return Comparison{
		City:        city,
		Season:      season,
		Current:     current,
		Mean:        row.Mean,
		Std:         row.Std,
		NormalLow:   round2(row.Mean - row.Std),
		NormalHigh:  round2(row.Mean + row.Std),
		AnomalyLow:  row.Mean - AnomalyThreshold*row.Std,
		AnomalyHigh: row.Mean + AnomalyThreshold*row.Std,
		IsAnomaly:   IsAnomaly(current, row.Mean, row.Std),
		ObservedAt:  at,
	}, nil
}
