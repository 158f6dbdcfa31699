// Command analyze processes a CSV dataset in both modes and checks that the
// runs agree. It reports per-mode timing, verifies that sequential and
// concurrent output are identical, and cross-checks the summary table
// against the per-record anomaly flags.
//
// Usage:
//
//	go run ./cmd/analyze -dataset data/temperature_data.csv -workers 8 -repeat 3
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/couchcryptid/city-temperature-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/city-temperature-etl/internal/observability"
	"github.com/couchcryptid/city-temperature-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// phase tracks pass/fail for a check phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// maxReported caps the detail lines printed per failed phase.
const maxReported = 20

func main() {
	dataset := flag.String("dataset", "data/temperature_data.csv", "path to the CSV dataset")
	workers := flag.Int("workers", 0, "concurrent pool size (0 = one per CPU)")
	repeat := flag.Int("repeat", 3, "timed runs per mode; the fastest is reported")
	flag.Parse()

	if *repeat < 1 {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(*dataset, *workers, *repeat))
}

func run(path string, workers, repeat int) int {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fmt.Println("=== Temperature Analysis ===")
	fmt.Println()

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open dataset: %v\n", err)
		return 1
	}
	records, err := csvfile.Decode(f, logger)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read dataset: %v\n", err)
		return 1
	}

	executor := pipeline.NewExecutor(logger, observability.NewMetricsForTesting(), pipeline.WithWorkers(workers))
	ctx := context.Background()

	seq, seqTime, err := timed(ctx, executor, records, pipeline.ModeSequential, repeat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: sequential run: %v\n", err)
		return 1
	}
	conc, concTime, err := timed(ctx, executor, records, pipeline.ModeConcurrent, repeat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: concurrent run: %v\n", err)
		return 1
	}

	// ── Run check phases ──
	phases := []*phase{
		checkDataset(records),
		checkModeEquivalence(seq, conc),
		checkSummary(seq),
	}

	// ── Report ──
	fmt.Printf("Dataset: %d records, %d cities, %d summary rows, %d anomalies\n",
		len(records), seq.Partitions, len(seq.Summary), seq.Anomalies())
	fmt.Println()
	fmt.Printf("  %-12s %8s %14s\n", "mode", "workers", "elapsed")
	fmt.Printf("  %-12s %8d %14s\n", seq.Mode, seq.Workers, seqTime)
	fmt.Printf("  %-12s %8d %14s\n", conc.Mode, conc.Workers, concTime)
	if concTime > 0 {
		fmt.Printf("  speedup: %.2fx\n", float64(seqTime)/float64(concTime))
	}
	fmt.Println()

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i == maxReported {
				fmt.Printf("  ... %d more\n", len(p.errors)-maxReported)
				break
			}
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll checks passed.")
		return 0
	}
	fmt.Println("\nAnalysis FAILED.")
	return 1
}

// timed processes records repeat times and returns the last result with the
// fastest elapsed time.
func timed(ctx context.Context, x *pipeline.Executor, records []domain.Record, mode pipeline.Mode, repeat int) (pipeline.Result, time.Duration, error) {
	var (
		res  pipeline.Result
		best time.Duration
	)
	for i := range repeat {
		r, err := x.Process(ctx, records, mode)
		if err != nil {
			return pipeline.Result{}, 0, err
		}
		if i == 0 || r.Elapsed < best {
			best = r.Elapsed
		}
		res = r
	}
	return res, best, nil
}

// ── Phase 1: Dataset ──

func checkDataset(records []domain.Record) *phase {
	p := &phase{name: "Phase 1: Dataset (fields present)"}
	if len(records) == 0 {
		p.errorf("dataset is empty")
	}
	for i, r := range records {
		if r.Timestamp.IsZero() {
			p.errorf("record %d (%s): missing timestamp", i, r.City)
		}
		if math.IsNaN(r.Temperature) || math.IsInf(r.Temperature, 0) {
			p.errorf("record %d (%s): non-finite temperature", i, r.City)
		}
	}
	return p
}

// ── Phase 2: Mode equivalence ──

func checkModeEquivalence(seq, conc pipeline.Result) *phase {
	p := &phase{name: "Phase 2: Mode Equivalence (seq vs conc)"}
	opts := cmpopts.EquateNaNs()

	if diff := cmp.Diff(seq.Records, conc.Records, opts); diff != "" {
		p.errorf("processed records differ (-sequential +concurrent):\n%s", diff)
	}
	if diff := cmp.Diff(seq.Summary, conc.Summary, opts); diff != "" {
		p.errorf("summary differs (-sequential +concurrent):\n%s", diff)
	}
	return p
}

// ── Phase 3: Summary consistency ──

type groupKey struct {
	city   string
	season domain.Season
}

func checkSummary(res pipeline.Result) *phase {
	p := &phase{name: "Phase 3: Summary Consistency"}

	counts := map[groupKey]int{}
	flagged := map[groupKey]int{}
	for _, r := range res.Records {
		k := groupKey{r.City, r.Season}
		counts[k]++
		if r.IsAnomaly {
			flagged[k]++
		}
	}

	total := 0
	for _, row := range res.Summary {
		k := groupKey{row.City, row.Season}
		total += row.Count
		if counts[k] != row.Count {
			p.errorf("%s/%s: count %d, records %d", row.City, row.Season, row.Count, counts[k])
			continue
		}
		want := math.Round(100*float64(flagged[k])/float64(row.Count)*100) / 100
		if math.Abs(want-row.AnomalyPercent) > 1e-9 {
			p.errorf("%s/%s: anomaly_percent %.2f, recomputed %.2f", row.City, row.Season, row.AnomalyPercent, want)
		}
		if row.Degenerate() != (row.Count == 1) {
			p.errorf("%s/%s: degenerate=%t with count %d", row.City, row.Season, row.Degenerate(), row.Count)
		}
	}
	if total != len(res.Records) {
		p.errorf("summary covers %d records, result has %d", total, len(res.Records))
	}
	return p
}
