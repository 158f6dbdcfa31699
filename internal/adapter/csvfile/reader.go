// Package csvfile extracts temperature records from a CSV file with a
// city,timestamp,temperature header.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/city-temperature-etl/internal/domain"
)

var requiredColumns = []string{"city", "timestamp", "temperature"}

// Reader reads the whole dataset file on every Extract call.
// It implements pipeline.Extractor.
type Reader struct {
	path   string
	logger *slog.Logger
}

// NewReader creates a Reader for the CSV file at path.
func NewReader(path string, logger *slog.Logger) *Reader {
	return &Reader{path: path, logger: logger}
}

// Extract reads every row of the file.
func (r *Reader) Extract(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	records, err := Decode(f, r.logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.path, err)
	}
	r.logger.Debug("dataset read", "path", r.path, "records", len(records))
	return records, nil
}

// Decode parses CSV rows from src. Line numbers in errors and log entries
// count the header as line 1.
func Decode(src io.Reader, logger *slog.Logger) ([]domain.Record, error) {
	cr := csv.NewReader(src)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file: missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var records []domain.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		raw, err := rawFromRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := domain.ParseRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.Timestamp.IsZero() {
			logger.Warn("unparseable timestamp", "line", line, "city", rec.City, "timestamp", raw.Timestamp)
		}
		records = append(records, rec)
	}
	return records, nil
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("header missing column %q", c)
		}
	}
	return cols, nil
}

func rawFromRow(row []string, cols map[string]int) (domain.RawRecord, error) {
	field := func(name string) string {
		if i := cols[name]; i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	raw := domain.RawRecord{
		City:      field("city"),
		Timestamp: field("timestamp"),
	}

	temp := field("temperature")
	if temp == "" {
		nan := math.NaN()
		raw.Temperature = &nan
		return raw, nil
	}
	v, err := strconv.ParseFloat(temp, 64)
	if err != nil {
		return domain.RawRecord{}, fmt.Errorf("invalid temperature %q", temp)
	}
	raw.Temperature = &v
	return raw, nil
}
