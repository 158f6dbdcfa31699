package domain

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// MovingWindow is the maximum number of observations in the moving mean.
const MovingWindow = 30

// AnomalyThreshold is the number of standard deviations from the seasonal
// mean beyond which a temperature is anomalous.
const AnomalyThreshold = 2.0

// ErrInvalidTimestamp is returned when a record has no usable timestamp.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// ProcessSeries computes the derived statistics for one city's records.
// The input is not modified and may be in any order; the output is in
// chronological order. Records with equal timestamps keep their input order.
func ProcessSeries(records []Record) ([]ProcessedRecord, error) {
	if len(records) == 0 {
		return []ProcessedRecord{}, nil
	}

	for i, r := range records {
		if r.Timestamp.IsZero() {
			return nil, fmt.Errorf("record %d: %w", i, ErrInvalidTimestamp)
		}
	}

	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b Record) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	temps := make([]float64, len(sorted))
	for i, r := range sorted {
		temps[i] = r.Temperature
	}
	moving := movingMean(temps, MovingWindow)

	out := make([]ProcessedRecord, len(sorted))
	groups := make(map[Season][]int, 4)
	for i, r := range sorted {
		season := SeasonAt(r.Timestamp)
		out[i] = ProcessedRecord{
			Record:     r,
			Season:     season,
			MovingMean: moving[i],
		}
		groups[season] = append(groups[season], i)
	}

	for _, idx := range groups {
		values := make([]float64, len(idx))
		for j, i := range idx {
			values[j] = temps[i]
		}
		mean, std := meanStd(values)
		for _, i := range idx {
			out[i].SeasonalMean = mean
			out[i].SeasonalStd = std
			out[i].IsAnomaly = IsAnomaly(out[i].Temperature, mean, std)
		}
	}

	return out, nil
}

// IsAnomaly reports whether t lies strictly outside mean ± AnomalyThreshold*std.
// Any NaN operand makes both comparisons false, so the result is false.
func IsAnomaly(t, mean, std float64) bool {
	lower := mean - AnomalyThreshold*std
	upper := mean + AnomalyThreshold*std
	return t < lower || t > upper
}

// movingMean returns the trailing mean of values with the given window and a
// minimum period of one. Each window is summed directly so a NaN only
// affects the windows that contain it.
func movingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		start := max(0, i-window+1)
		sum := 0.0
		for _, v := range values[start : i+1] {
			sum += v
		}
		out[i] = sum / float64(i-start+1)
	}
	return out
}

// meanStd returns the arithmetic mean and the sample standard deviation
// (divisor n-1). A single value has an undefined std, returned as NaN.
func meanStd(values []float64) (mean, std float64) {
	n := len(values)
	if n == 0 {
		return math.NaN(), math.NaN()
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(n)

	if n < 2 {
		return mean, math.NaN()
	}

	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(n-1))
}
