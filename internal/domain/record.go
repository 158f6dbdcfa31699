package domain

import (
	"math"
	"time"
)

// Season is one of the four meteorological seasons.
type Season string

const (
	Winter Season = "winter"
	Spring Season = "spring"
	Summer Season = "summer"
	Autumn Season = "autumn"
)

// Record is a single temperature observation for a city.
type Record struct {
	City        string    `json:"city"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
}

// ProcessedRecord is a Record extended with the statistics derived from its
// city's series.
type ProcessedRecord struct {
	Record

	Season       Season  `json:"season"`
	MovingMean   float64 `json:"moving_mean"`
	SeasonalMean float64 `json:"seasonal_mean"`
	SeasonalStd  float64 `json:"seasonal_std"`
	IsAnomaly    bool    `json:"is_anomaly"`
}

// Degenerate reports whether the record's seasonal std is undefined, which
// happens for single-record seasonal groups.
func (r ProcessedRecord) Degenerate() bool {
	return math.IsNaN(r.SeasonalStd) || math.IsInf(r.SeasonalStd, 0)
}

// SummaryRow is the per-(city, season) reduction of a processed dataset.
type SummaryRow struct {
	City           string  `json:"city"`
	Season         Season  `json:"season"`
	Mean           float64 `json:"mean"`
	Std            float64 `json:"std"`
	AnomalyPercent float64 `json:"anomaly_percent"`
	Count          int     `json:"count"`
}

// Degenerate reports whether the group's std is undefined.
func (s SummaryRow) Degenerate() bool {
	return math.IsNaN(s.Std) || math.IsInf(s.Std, 0)
}

// RawRecord is the loosely typed form of a Record as it arrives from a CSV
// row or a Kafka message, before timestamp parsing and validation.
type RawRecord struct {
	City        string   `json:"city" validate:"required"`
	Timestamp   string   `json:"timestamp"`
	Temperature *float64 `json:"temperature" validate:"required"`
}

// RawEvent is a message read from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
}

// OutputEvent is the serialized form destined for a sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
