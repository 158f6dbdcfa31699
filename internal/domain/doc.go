// Package domain models per-city temperature series and the statistics
// derived from them.
//
// # Data Source
//
// Each observation is a (city, timestamp, temperature) triple. Observations
// arrive either as rows of a CSV export or as JSON messages on a Kafka topic;
// both adapters decode into [RawRecord] and convert with [ParseRecord]. Input
// order is never trusted: every series is sorted chronologically before any
// statistic is computed.
//
// # Seasons
//
// Seasons follow the meteorological (northern hemisphere) convention and are
// derived from each record's own timestamp month:
//
//	Dec, Jan, Feb  →  winter
//	Mar, Apr, May  →  spring
//	Jun, Jul, Aug  →  summer
//	Sep, Oct, Nov  →  autumn
//
// # Derived Statistics
//
// Moving mean:
//
//	Trailing window of up to 30 observations, inclusive of the current one.
//	The window shrinks only at the start of a series, so the first record's
//	moving mean equals its own temperature.
//
// Seasonal baseline:
//
//	Arithmetic mean and sample standard deviation (divisor n-1) over all
//	records of one city in one season. Both values are broadcast to every
//	record of that group.
//
// Anomaly:
//
//	A record is anomalous when its temperature lies strictly outside
//	[mean - 2*std, mean + 2*std]. A temperature exactly on a bound is normal.
//
// # Degenerate Groups
//
// A (city, season) group with a single record has no sample standard
// deviation. The std is carried as NaN rather than 0: IEEE comparisons
// against NaN bounds are false, so the record is not flagged, but the NaN
// stays visible to callers through [ProcessedRecord.Degenerate] and
// [SummaryRow.Degenerate]. On the wire the value is encoded as null with
// "degenerate": true.
package domain
