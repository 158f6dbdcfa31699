package domain

import "time"

// SeasonOf maps a calendar month to its season. Out-of-range values are
// normalized modulo 12 so the function is total.
func SeasonOf(month time.Month) Season {
	m := ((int(month)-1)%12+12)%12 + 1
	switch m {
	case 12, 1, 2:
		return Winter
	case 3, 4, 5:
		return Spring
	case 6, 7, 8:
		return Summer
	default:
		return Autumn
	}
}

// SeasonAt classifies t by its own calendar month.
func SeasonAt(t time.Time) Season {
	return SeasonOf(t.Month())
}

// CurrentSeason returns the season of the package clock's current time.
func CurrentSeason() Season {
	return SeasonAt(Now())
}
