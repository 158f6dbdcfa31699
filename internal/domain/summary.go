package domain

import "math"

type groupKey struct {
	city   string
	season Season
}

// Summarize reduces a processed dataset to one SummaryRow per (city, season)
// pair. Mean and Std are read from the broadcast seasonal statistics rather
// than recomputed, so the summary always agrees with the per-row flags.
// Rows are ordered by first appearance of each group in the input.
func Summarize(records []ProcessedRecord) []SummaryRow {
	type acc struct {
		row       SummaryRow
		anomalies int
	}

	index := make(map[groupKey]int)
	groups := make([]acc, 0)

	for _, r := range records {
		key := groupKey{city: r.City, season: r.Season}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, acc{row: SummaryRow{
				City:   r.City,
				Season: r.Season,
				Mean:   r.SeasonalMean,
				Std:    r.SeasonalStd,
			}})
		}
		groups[i].row.Count++
		if r.IsAnomaly {
			groups[i].anomalies++
		}
	}

	rows := make([]SummaryRow, len(groups))
	for i, g := range groups {
		g.row.AnomalyPercent = round2(100 * float64(g.anomalies) / float64(g.row.Count))
		rows[i] = g.row
	}
	return rows
}

// FindSummary returns the summary row for a (city, season) pair.
func FindSummary(rows []SummaryRow, city string, season Season) (SummaryRow, bool) {
	for _, r := range rows {
		if r.City == city && r.Season == season {
			return r, true
		}
	}
	return SummaryRow{}, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
