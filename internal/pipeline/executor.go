package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/city-temperature-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Mode selects how city partitions are scheduled.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeConcurrent Mode = "concurrent"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSequential, ModeConcurrent:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown processing mode %q", s)
	}
}

// Result is the complete output of one processing run.
type Result struct {
	Records     []domain.ProcessedRecord
	Summary     []domain.SummaryRow
	Mode        Mode
	Workers     int
	Partitions  int
	Elapsed     time.Duration
	Fingerprint string

	// Cached is set when the result was served from the result cache.
	// Elapsed then reports the run that originally produced it.
	Cached bool
}

// ElapsedSeconds returns the wall-clock time of the partitioned step in seconds.
func (r Result) ElapsedSeconds() float64 {
	return r.Elapsed.Seconds()
}

// Anomalies counts the anomalous records.
func (r Result) Anomalies() int {
	n := 0
	for _, rec := range r.Records {
		if rec.IsAnomaly {
			n++
		}
	}
	return n
}

// CityRecords returns the processed records of one city in chronological order.
func (r Result) CityRecords(city string) []domain.ProcessedRecord {
	var out []domain.ProcessedRecord
	for _, rec := range r.Records {
		if rec.City == city {
			out = append(out, rec)
		}
	}
	return out
}

// PartitionError identifies the city whose partition failed.
type PartitionError struct {
	City string
	Err  error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("partition %q: %v", e.City, e.Err)
}

func (e *PartitionError) Unwrap() error { return e.Err }

// Executor splits a dataset by city and processes each partition.
//
// Every partition is attempted in both modes. If any fail, Process returns
// the joined *PartitionError values and no Result, so a run is either
// complete or absent.
type Executor struct {
	workers int
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithWorkers bounds the concurrent worker pool. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithClock sets the clock used to time runs.
func WithClock(c clockwork.Clock) Option {
	return func(e *Executor) {
		e.clock = c
	}
}

// NewExecutor creates an Executor with one worker per CPU by default.
func NewExecutor(logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Executor {
	e := &Executor{
		workers: runtime.NumCPU(),
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Workers returns the concurrent pool size.
func (e *Executor) Workers() int { return e.workers }

type partition struct {
	city    string
	records []domain.Record
}

// Process runs the series processor over every city in dataset. Output rows
// are grouped by city in order of first appearance, chronological within a
// city, and identical between modes.
func (e *Executor) Process(ctx context.Context, dataset []domain.Record, mode Mode) (Result, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return Result{}, err
	}

	start := e.clock.Now()
	parts := partitionByCity(dataset)
	outputs := make([][]domain.ProcessedRecord, len(parts))
	errs := make([]error, len(parts))

	switch mode {
	case ModeSequential:
		for i, p := range parts {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			outputs[i], errs[i] = e.processPartition(p)
		}
	case ModeConcurrent:
		var g errgroup.Group
		g.SetLimit(e.workers)
		for i, p := range parts {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				outputs[i], errs[i] = e.processPartition(p)
				return errs[i]
			})
		}
		_ = g.Wait() // every partition error is kept in errs
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Result{}, err
	}

	total := 0
	for _, out := range outputs {
		total += len(out)
	}
	records := make([]domain.ProcessedRecord, 0, total)
	for _, out := range outputs {
		records = append(records, out...)
	}
	elapsed := e.clock.Since(start)

	e.metrics.RunDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	e.metrics.RecordsProcessed.Add(float64(len(records)))

	workers := 1
	if mode == ModeConcurrent {
		workers = e.workers
	}

	return Result{
		Records:    records,
		Summary:    domain.Summarize(records),
		Mode:       mode,
		Workers:    workers,
		Partitions: len(parts),
		Elapsed:    elapsed,
	}, nil
}

func (e *Executor) processPartition(p partition) (out []domain.ProcessedRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			e.logger.Warn("partition failed", "city", p.city, "records", len(p.records), "error", err)
			e.metrics.PartitionsTotal.WithLabelValues("error").Inc()
			out, err = nil, &PartitionError{City: p.city, Err: err}
			return
		}
		e.metrics.PartitionsTotal.WithLabelValues("success").Inc()
	}()

	return domain.ProcessSeries(p.records)
}

// partitionByCity groups records by city, preserving the order in which
// cities first appear.
func partitionByCity(dataset []domain.Record) []partition {
	index := make(map[string]int)
	var parts []partition
	for _, r := range dataset {
		i, ok := index[r.City]
		if !ok {
			i = len(parts)
			index[r.City] = i
			parts = append(parts, partition{city: r.City})
		}
		parts[i].records = append(parts[i].records, r)
	}
	return parts
}
