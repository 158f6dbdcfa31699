package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// timestampLayouts are tried in order when parsing raw timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseRecord validates a RawRecord and converts it to a Record. A missing
// or unparseable timestamp is not an error here: the record is returned with
// a zero Timestamp so that the owning city's partition fails with
// ErrInvalidTimestamp instead of the row being silently dropped.
func ParseRecord(raw RawRecord) (Record, error) {
	raw.City = strings.TrimSpace(raw.City)
	if err := validate.Struct(raw); err != nil {
		return Record{}, fmt.Errorf("validate record: %w", err)
	}

	ts, _ := ParseTimestamp(raw.Timestamp)
	return Record{
		City:        raw.City,
		Timestamp:   ts,
		Temperature: *raw.Temperature,
	}, nil
}

// ParseTimestamp parses s using the supported layouts. Timestamps without a
// zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp: %w", ErrInvalidTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q: %w", s, ErrInvalidTimestamp)
}

// JSON has no NaN, so non-finite statistics travel as null together with a
// degenerate flag.

type processedRecordJSON struct {
	City         string    `json:"city"`
	Timestamp    time.Time `json:"timestamp"`
	Temperature  *float64  `json:"temperature"`
	Season       Season    `json:"season"`
	MovingMean   *float64  `json:"moving_mean"`
	SeasonalMean *float64  `json:"seasonal_mean"`
	SeasonalStd  *float64  `json:"seasonal_std"`
	IsAnomaly    bool      `json:"is_anomaly"`
	Degenerate   bool      `json:"degenerate,omitempty"`
}

// MarshalJSON encodes non-finite values as null.
func (r ProcessedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(processedRecordJSON{
		City:         r.City,
		Timestamp:    r.Timestamp,
		Temperature:  finite(r.Temperature),
		Season:       r.Season,
		MovingMean:   finite(r.MovingMean),
		SeasonalMean: finite(r.SeasonalMean),
		SeasonalStd:  finite(r.SeasonalStd),
		IsAnomaly:    r.IsAnomaly,
		Degenerate:   r.Degenerate(),
	})
}

// UnmarshalJSON decodes null statistics back to NaN.
func (r *ProcessedRecord) UnmarshalJSON(data []byte) error {
	var w processedRecordJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = ProcessedRecord{
		Record: Record{
			City:        w.City,
			Timestamp:   w.Timestamp,
			Temperature: orNaN(w.Temperature),
		},
		Season:       w.Season,
		MovingMean:   orNaN(w.MovingMean),
		SeasonalMean: orNaN(w.SeasonalMean),
		SeasonalStd:  orNaN(w.SeasonalStd),
		IsAnomaly:    w.IsAnomaly,
	}
	return nil
}

type summaryRowJSON struct {
	City           string   `json:"city"`
	Season         Season   `json:"season"`
	Mean           *float64 `json:"mean"`
	Std            *float64 `json:"std"`
	AnomalyPercent float64  `json:"anomaly_percent"`
	Count          int      `json:"count"`
	Degenerate     bool     `json:"degenerate,omitempty"`
}

// MarshalJSON encodes non-finite values as null.
func (s SummaryRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryRowJSON{
		City:           s.City,
		Season:         s.Season,
		Mean:           finite(s.Mean),
		Std:            finite(s.Std),
		AnomalyPercent: s.AnomalyPercent,
		Count:          s.Count,
		Degenerate:     s.Degenerate(),
	})
}

// UnmarshalJSON decodes null statistics back to NaN.
func (s *SummaryRow) UnmarshalJSON(data []byte) error {
	var w summaryRowJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = SummaryRow{
		City:           w.City,
		Season:         w.Season,
		Mean:           orNaN(w.Mean),
		Std:            orNaN(w.Std),
		AnomalyPercent: w.AnomalyPercent,
		Count:          w.Count,
	}
	return nil
}

// MarshalJSON encodes non-finite values as null.
func (c Comparison) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		City        string    `json:"city"`
		Season      Season    `json:"season"`
		Current     float64   `json:"current"`
		Mean        *float64  `json:"mean"`
		Std         *float64  `json:"std"`
		NormalLow   *float64  `json:"normal_low"`
		NormalHigh  *float64  `json:"normal_high"`
		AnomalyLow  *float64  `json:"anomaly_low"`
		AnomalyHigh *float64  `json:"anomaly_high"`
		IsAnomaly   bool      `json:"is_anomaly"`
		ObservedAt  time.Time `json:"observed_at"`
	}{
		City:        c.City,
		Season:      c.Season,
		Current:     c.Current,
		Mean:        finite(c.Mean),
		Std:         finite(c.Std),
		NormalLow:   finite(c.NormalLow),
		NormalHigh:  finite(c.NormalHigh),
		AnomalyLow:  finite(c.AnomalyLow),
		AnomalyHigh: finite(c.AnomalyHigh),
		IsAnomaly:   c.IsAnomaly,
		ObservedAt:  c.ObservedAt,
	})
}

// SerializeProcessedRecord converts a processed record into a sink message
// keyed by city.
func SerializeProcessedRecord(r ProcessedRecord) (OutputEvent, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize processed record: %w", err)
	}
	return OutputEvent{
		Key:   []byte(r.City),
		Value: data,
		Headers: map[string]string{
			"season":     string(r.Season),
			"is_anomaly": fmt.Sprintf("%t", r.IsAnomaly),
		},
	}, nil
}

// SerializeSummaryRow converts a summary row into a sink message keyed by
// city and season.
func SerializeSummaryRow(s SummaryRow) (OutputEvent, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize summary row: %w", err)
	}
	return OutputEvent{
		Key:   []byte(s.City + "|" + string(s.Season)),
		Value: data,
		Headers: map[string]string{
			"season": string(s.Season),
		},
	}, nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
