// Command genmock writes a synthetic daily temperature dataset in the CSV
// layout the service reads, and optionally the summary the pipeline produces
// for it as a JSON fixture. Output is reproducible for a given seed.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/temperature_data.csv \
//	  -summary-out data/mock/temperature_summary.json \
//	  -years 10 -seed 42
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/city-temperature-etl/internal/observability"
	"github.com/couchcryptid/city-temperature-etl/internal/pipeline"
)

// seasonalNorms holds the mean temperature (°C) of each season per city.
var seasonalNorms = []struct {
	city  string
	norms map[domain.Season]float64
}{
	{"New York", map[domain.Season]float64{domain.Winter: 0, domain.Spring: 10, domain.Summer: 25, domain.Autumn: 15}},
	{"London", map[domain.Season]float64{domain.Winter: 5, domain.Spring: 11, domain.Summer: 18, domain.Autumn: 12}},
	{"Paris", map[domain.Season]float64{domain.Winter: 4, domain.Spring: 12, domain.Summer: 20, domain.Autumn: 13}},
	{"Tokyo", map[domain.Season]float64{domain.Winter: 6, domain.Spring: 15, domain.Summer: 27, domain.Autumn: 18}},
	{"Moscow", map[domain.Season]float64{domain.Winter: -10, domain.Spring: 5, domain.Summer: 18, domain.Autumn: 8}},
	{"Sydney", map[domain.Season]float64{domain.Winter: 12, domain.Spring: 18, domain.Summer: 25, domain.Autumn: 20}},
	{"Berlin", map[domain.Season]float64{domain.Winter: 0, domain.Spring: 10, domain.Summer: 20, domain.Autumn: 11}},
	{"Beijing", map[domain.Season]float64{domain.Winter: -2, domain.Spring: 13, domain.Summer: 27, domain.Autumn: 16}},
	{"Rio de Janeiro", map[domain.Season]float64{domain.Winter: 20, domain.Spring: 25, domain.Summer: 30, domain.Autumn: 25}},
	{"Dubai", map[domain.Season]float64{domain.Winter: 20, domain.Spring: 30, domain.Summer: 40, domain.Autumn: 30}},
	{"Los Angeles", map[domain.Season]float64{domain.Winter: 15, domain.Spring: 18, domain.Summer: 25, domain.Autumn: 20}},
	{"Singapore", map[domain.Season]float64{domain.Winter: 27, domain.Spring: 28, domain.Summer: 28, domain.Autumn: 27}},
	{"Mumbai", map[domain.Season]float64{domain.Winter: 25, domain.Spring: 30, domain.Summer: 35, domain.Autumn: 30}},
	{"Cairo", map[domain.Season]float64{domain.Winter: 15, domain.Spring: 25, domain.Summer: 35, domain.Autumn: 25}},
	{"Mexico City", map[domain.Season]float64{domain.Winter: 12, domain.Spring: 18, domain.Summer: 20, domain.Autumn: 15}},
}

// noiseStd is the day-to-day deviation around the seasonal norm.
const noiseStd = 5.0

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/temperature_data.csv", "output path for the CSV dataset")
	summaryOut := flag.String("summary-out", "", "optional output path for the processed summary JSON fixture")
	years := flag.Int("years", 10, "number of years of daily observations per city")
	start := flag.String("start", "2010-01-01", "first observation date (YYYY-MM-DD)")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	if *years <= 0 {
		return fmt.Errorf("-years must be positive")
	}
	startDate, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return fmt.Errorf("-start: %w", err)
	}

	records := generate(startDate, 365*(*years), rand.New(rand.NewPCG(*seed, *seed)))

	if err := writeFile(*out, func(w io.Writer) error { return writeCSV(w, records) }); err != nil {
		return err
	}
	log.Printf("wrote %d records for %d cities to %s", len(records), len(seasonalNorms), *out)

	if *summaryOut == "" {
		return nil
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	executor := pipeline.NewExecutor(logger, observability.NewMetricsForTesting())
	res, err := executor.Process(context.Background(), records, pipeline.ModeConcurrent)
	if err != nil {
		return fmt.Errorf("process generated dataset: %w", err)
	}

	err = writeFile(*summaryOut, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Summary)
	})
	if err != nil {
		return err
	}
	log.Printf("wrote %d summary rows (%d anomalies) to %s", len(res.Summary), res.Anomalies(), *summaryOut)
	return nil
}

// generate produces days daily observations per city, in city-major order.
func generate(start time.Time, days int, rng *rand.Rand) []domain.Record {
	records := make([]domain.Record, 0, days*len(seasonalNorms))
	for _, c := range seasonalNorms {
		for d := range days {
			ts := start.AddDate(0, 0, d)
			temp := c.norms[domain.SeasonAt(ts)] + rng.NormFloat64()*noiseStd
			records = append(records, domain.Record{City: c.city, Timestamp: ts, Temperature: temp})
		}
	}
	return records
}

// writeCSV writes records with a trailing season column, matching the
// layout of the published dataset. The reader ignores extra columns.
func writeCSV(w io.Writer, records []domain.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"city", "timestamp", "temperature", "season"}); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.City,
			r.Timestamp.Format(time.DateOnly),
			strconv.FormatFloat(r.Temperature, 'f', 6, 64),
			string(domain.SeasonAt(r.Timestamp)),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeFile(path string, fill func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fill(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
