package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/city-temperature-etl/internal/observability"
	"github.com/couchcryptid/city-temperature-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

// dailySeries returns n daily observations for city starting at start.
func dailySeries(city string, start time.Time, n int, temp func(i int) float64) []domain.Record {
	out := make([]domain.Record, n)
	for i := range out {
		out[i] = domain.Record{
			City:        city,
			Timestamp:   start.AddDate(0, 0, i),
			Temperature: temp(i),
		}
	}
	return out
}

// interleavedDataset mixes two cities so partitioning has to regroup them.
func interleavedDataset() []domain.Record {
	start := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	a := dailySeries("A", start, 40, func(i int) float64 { return float64(i % 7) })
	b := dailySeries("B", start, 40, func(i int) float64 { return 20 + float64(i%5) })

	var out []domain.Record
	for i := range a {
		out = append(out, a[i], b[i])
	}
	return out
}

func TestParseMode(t *testing.T) {
	m, err := pipeline.ParseMode("sequential")
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeSequential, m)

	m, err = pipeline.ParseMode("concurrent")
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeConcurrent, m)

	_, err = pipeline.ParseMode("parallel")
	require.Error(t, err)
}

func TestExecutor_ModesProduceIdenticalOutput(t *testing.T) {
	dataset := interleavedDataset()
	x := pipeline.NewExecutor(slog.Default(), newTestMetrics(), pipeline.WithWorkers(2))

	seq, err := x.Process(context.Background(), dataset, pipeline.ModeSequential)
	require.NoError(t, err)
	conc, err := x.Process(context.Background(), dataset, pipeline.ModeConcurrent)
	require.NoError(t, err)

	opts := cmpopts.EquateNaNs()
	if diff := cmp.Diff(seq.Records, conc.Records, opts); diff != "" {
		t.Errorf("records differ between modes (-sequential +concurrent):\n%s", diff)
	}
	if diff := cmp.Diff(seq.Summary, conc.Summary, opts); diff != "" {
		t.Errorf("summary differs between modes (-sequential +concurrent):\n%s", diff)
	}

	assert.Equal(t, 1, seq.Workers)
	assert.Equal(t, 2, conc.Workers)
	assert.Equal(t, 2, conc.Partitions)
}

func TestExecutor_GroupsByFirstAppearance(t *testing.T) {
	dataset := interleavedDataset()
	x := pipeline.NewExecutor(slog.Default(), newTestMetrics(), pipeline.WithWorkers(4))

	res, err := x.Process(context.Background(), dataset, pipeline.ModeConcurrent)
	require.NoError(t, err)
	require.Len(t, res.Records, len(dataset))

	for i, r := range res.Records {
		want := "A"
		if i >= 40 {
			want = "B"
		}
		assert.Equal(t, want, r.City, "row %d", i)
	}
	for i := 1; i < 40; i++ {
		assert.True(t, res.Records[i-1].Timestamp.Before(res.Records[i].Timestamp))
	}

	a := res.CityRecords("A")
	assert.Len(t, a, 40)
	assert.Empty(t, res.CityRecords("C"))
}

func TestExecutor_PartitionFailure(t *testing.T) {
	dataset := interleavedDataset()
	dataset = append(dataset, domain.Record{City: "Broken", Temperature: 1})

	for _, mode := range []pipeline.Mode{pipeline.ModeSequential, pipeline.ModeConcurrent} {
		t.Run(string(mode), func(t *testing.T) {
			x := pipeline.NewExecutor(slog.Default(), newTestMetrics(), pipeline.WithWorkers(2))

			res, err := x.Process(context.Background(), dataset, mode)
			require.Error(t, err)
			assert.Empty(t, res.Records)
			assert.Empty(t, res.Summary)

			var perr *pipeline.PartitionError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "Broken", perr.City)
			assert.ErrorIs(t, err, domain.ErrInvalidTimestamp)
		})
	}
}

func TestExecutor_ReportsEveryFailedPartition(t *testing.T) {
	dataset := []domain.Record{
		{City: "X", Temperature: 1},
		{City: "Y", Temperature: 2},
	}
	x := pipeline.NewExecutor(slog.Default(), newTestMetrics(), pipeline.WithWorkers(2))

	_, err := x.Process(context.Background(), dataset, pipeline.ModeConcurrent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `partition "X"`)
	assert.Contains(t, err.Error(), `partition "Y"`)
}

func TestExecutor_ElapsedUsesClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	x := pipeline.NewExecutor(slog.Default(), newTestMetrics(), pipeline.WithClock(clock))

	res, err := x.Process(context.Background(), interleavedDataset(), pipeline.ModeSequential)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), res.Elapsed)
	assert.Zero(t, res.ElapsedSeconds())
}

func TestExecutor_EmptyDataset(t *testing.T) {
	x := pipeline.NewExecutor(slog.Default(), newTestMetrics())

	res, err := x.Process(context.Background(), nil, pipeline.ModeConcurrent)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Summary)
	assert.Zero(t, res.Partitions)
}

func TestExecutor_Idempotent(t *testing.T) {
	dataset := interleavedDataset()
	x := pipeline.NewExecutor(slog.Default(), newTestMetrics(), pipeline.WithWorkers(3))

	first, err := x.Process(context.Background(), dataset, pipeline.ModeConcurrent)
	require.NoError(t, err)
	second, err := x.Process(context.Background(), dataset, pipeline.ModeConcurrent)
	require.NoError(t, err)

	if diff := cmp.Diff(first.Records, second.Records, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("repeated runs produce different records:\n%s", diff)
	}
	if diff := cmp.Diff(first.Summary, second.Summary, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("repeated runs produce different summaries:\n%s", diff)
	}
}

func TestExecutor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	x := pipeline.NewExecutor(slog.Default(), newTestMetrics())
	for _, mode := range []pipeline.Mode{pipeline.ModeSequential, pipeline.ModeConcurrent} {
		_, err := x.Process(ctx, interleavedDataset(), mode)
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestExecutor_UnknownMode(t *testing.T) {
	x := pipeline.NewExecutor(slog.Default(), newTestMetrics())
	_, err := x.Process(context.Background(), interleavedDataset(), pipeline.Mode("fast"))
	require.Error(t, err)
}

func TestExecutor_WorkersOption(t *testing.T) {
	x := pipeline.NewExecutor(slog.Default(), newTestMetrics(), pipeline.WithWorkers(0))
	assert.Positive(t, x.Workers())

	x = pipeline.NewExecutor(slog.Default(), newTestMetrics(), pipeline.WithWorkers(5))
	assert.Equal(t, 5, x.Workers())
}

func TestExecutor_DegenerateGroupSurvives(t *testing.T) {
	dataset := []domain.Record{
		{City: "B", Timestamp: time.Date(2023, time.July, 1, 0, 0, 0, 0, time.UTC), Temperature: 25},
	}
	x := pipeline.NewExecutor(slog.Default(), newTestMetrics())

	res, err := x.Process(context.Background(), dataset, pipeline.ModeConcurrent)
	require.NoError(t, err)
	require.Len(t, res.Summary, 1)
	assert.True(t, math.IsNaN(res.Summary[0].Std))
	assert.InDelta(t, 0.0, res.Summary[0].AnomalyPercent, 1e-9)
	assert.False(t, res.Records[0].IsAnomaly)
}
