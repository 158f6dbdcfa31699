package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/city-temperature-etl/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	records []domain.Record
	err     error
	calls   int
}

func (m *mockExtractor) Extract(_ context.Context) ([]domain.Record, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

type mockLoader struct {
	loaded []pipeline.Result
	err    error
}

func (m *mockLoader) Load(_ context.Context, r pipeline.Result) error {
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, r)
	return nil
}

// --- tests ---

func TestPipeline_RunOnce_HappyPath(t *testing.T) {
	ext := &mockExtractor{records: interleavedDataset()}
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	x := pipeline.NewExecutor(slog.Default(), metrics, pipeline.WithWorkers(2))
	p := pipeline.New(ext, x, ldr, nil, pipeline.ModeConcurrent, slog.Default(), metrics)

	require.ErrorIs(t, p.CheckReadiness(context.Background()), pipeline.ErrNoResult)
	_, ok := p.Latest()
	assert.False(t, ok)

	res, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Records, 80)
	assert.NotEmpty(t, res.Fingerprint)
	require.Len(t, ldr.loaded, 1)
	assert.Equal(t, res.Fingerprint, ldr.loaded[0].Fingerprint)

	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, res.Fingerprint, latest.Fingerprint)
	require.NoError(t, p.CheckReadiness(context.Background()))

	assert.InDelta(t, 80.0, testutil.ToFloat64(metrics.RecordsExtracted), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("concurrent", "success")), 1e-9)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning), 1e-9)
}

func TestPipeline_RunMode_OverridesDefault(t *testing.T) {
	ext := &mockExtractor{records: interleavedDataset()}
	metrics := newTestMetrics()
	x := pipeline.NewExecutor(slog.Default(), metrics)
	p := pipeline.New(ext, x, nil, nil, pipeline.ModeConcurrent, slog.Default(), metrics)

	res, err := p.RunMode(context.Background(), pipeline.ModeSequential)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeSequential, res.Mode)
	assert.Equal(t, pipeline.ModeConcurrent, p.Mode())
}

func TestPipeline_ExtractError(t *testing.T) {
	ext := &mockExtractor{err: errors.New("disk gone")}
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := pipeline.New(ext, pipeline.NewExecutor(slog.Default(), metrics), ldr, nil, pipeline.ModeSequential, slog.Default(), metrics)

	_, err := p.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.Empty(t, ldr.loaded)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("sequential", "error")), 1e-9)
}

func TestPipeline_FailedRunKeepsPreviousResult(t *testing.T) {
	ext := &mockExtractor{records: interleavedDataset()}
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := pipeline.New(ext, pipeline.NewExecutor(slog.Default(), metrics), ldr, nil, pipeline.ModeSequential, slog.Default(), metrics)

	first, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	// a record without a timestamp fails its partition
	ext.records = append(ext.records, domain.Record{City: "A", Temperature: 3})
	_, err = p.RunOnce(context.Background())
	var perr *pipeline.PartitionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "A", perr.City)

	assert.Len(t, ldr.loaded, 1)
	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, first.Fingerprint, latest.Fingerprint)
}

func TestPipeline_LoadError(t *testing.T) {
	ext := &mockExtractor{records: interleavedDataset()}
	ldr := &mockLoader{err: errors.New("broker down")}
	metrics := newTestMetrics()
	p := pipeline.New(ext, pipeline.NewExecutor(slog.Default(), metrics), ldr, nil, pipeline.ModeSequential, slog.Default(), metrics)

	_, err := p.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load")

	_, ok := p.Latest()
	assert.False(t, ok)
}

func TestPipeline_CacheSkipsReprocessing(t *testing.T) {
	ext := &mockExtractor{records: interleavedDataset()}
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	cache := pipeline.NewResultCache(4, metrics)
	p := pipeline.New(ext, pipeline.NewExecutor(slog.Default(), metrics), ldr, cache, pipeline.ModeSequential, slog.Default(), metrics)

	first, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	second, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Elapsed, second.Elapsed)
	latest, ok := p.Latest()
	require.True(t, ok)
	assert.True(t, latest.Cached)
	assert.Len(t, ldr.loaded, 1, "unchanged dataset is not loaded twice")
	assert.Equal(t, 2, ext.calls)
	assert.InDelta(t, 80.0, testutil.ToFloat64(metrics.RecordsProcessed), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ResultCache.WithLabelValues("hit")), 1e-9)

	// a different mode is a different cache key
	_, err = p.RunMode(context.Background(), pipeline.ModeConcurrent)
	require.NoError(t, err)
	assert.Len(t, ldr.loaded, 2)
}

func TestPipeline_CacheKeyedOnZone(t *testing.T) {
	utc := time.Date(2024, time.March, 1, 4, 30, 0, 0, time.UTC)
	east := time.FixedZone("UTC-5", -5*60*60)

	ext := &mockExtractor{records: []domain.Record{
		{City: "A", Timestamp: utc, Temperature: 1},
		{City: "A", Timestamp: utc.Add(time.Hour), Temperature: 3},
	}}
	metrics := newTestMetrics()
	cache := pipeline.NewResultCache(4, metrics)
	p := pipeline.New(ext, pipeline.NewExecutor(slog.Default(), metrics), nil, cache, pipeline.ModeSequential, slog.Default(), metrics)

	first, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Spring, first.Records[0].Season)

	// same instants, but the local date falls in February
	ext.records = []domain.Record{
		{City: "A", Timestamp: utc.In(east), Temperature: 1},
		{City: "A", Timestamp: utc.Add(time.Hour).In(east), Temperature: 3},
	}
	second, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.Equal(t, domain.Winter, second.Records[0].Season)
}
