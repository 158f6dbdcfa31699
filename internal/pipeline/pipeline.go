package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/city-temperature-etl/internal/observability"
)

// Extractor reads a complete dataset snapshot from the source.
type Extractor interface {
	Extract(ctx context.Context) ([]domain.Record, error)
}

// Loader publishes a successful run's output to the destination.
type Loader interface {
	Load(ctx context.Context, result Result) error
}

// ErrNoResult is returned before the first successful run.
var ErrNoResult = errors.New("no processing run has completed yet")

// Pipeline orchestrates the extract-process-load cycle and holds the latest
// successful Result.
type Pipeline struct {
	extractor Extractor
	executor  *Executor
	loader    Loader
	cache     *ResultCache
	mode      Mode
	logger    *slog.Logger
	metrics   *observability.Metrics

	runMu  sync.Mutex
	latest atomic.Pointer[Result]
}

// New creates a Pipeline. loader and cache may be nil.
func New(e Extractor, x *Executor, l Loader, cache *ResultCache, mode Mode, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		extractor: e,
		executor:  x,
		loader:    l,
		cache:     cache,
		mode:      mode,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if p.latest.Load() == nil {
		return ErrNoResult
	}
	return nil
}

// Latest returns the most recent successful Result.
func (p *Pipeline) Latest() (Result, bool) {
	r := p.latest.Load()
	if r == nil {
		return Result{}, false
	}
	return *r, true
}

// Mode returns the default processing mode.
func (p *Pipeline) Mode() Mode { return p.mode }

// RunOnce executes one cycle in the default mode.
func (p *Pipeline) RunOnce(ctx context.Context) (Result, error) {
	return p.RunMode(ctx, p.mode)
}

// RunMode executes one cycle in the given mode. Runs are serialized. A
// failed run leaves the previous Result in place and loads nothing.
func (p *Pipeline) RunMode(ctx context.Context, mode Mode) (Result, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	records, err := p.extractor.Extract(ctx)
	if err != nil {
		p.fail(mode, "extract failed", err)
		return Result{}, fmt.Errorf("extract: %w", err)
	}
	p.metrics.RecordsExtracted.Add(float64(len(records)))

	key := Fingerprint(records, mode, p.executor.Workers())
	if p.cache != nil {
		if cached, ok := p.cache.Get(key); ok {
			cached.Cached = true
			p.logger.Info("dataset unchanged, reusing cached result",
				"mode", mode, "fingerprint", key[:12], "records", len(cached.Records))
			p.publish(cached)
			p.metrics.RunsTotal.WithLabelValues(string(mode), "success").Inc()
			return cached, nil
		}
	}

	result, err := p.executor.Process(ctx, records, mode)
	if err != nil {
		p.fail(mode, "process failed", err)
		return Result{}, fmt.Errorf("process: %w", err)
	}
	result.Fingerprint = key

	if p.loader != nil {
		if err := p.loader.Load(ctx, result); err != nil {
			p.fail(mode, "load failed", err)
			return Result{}, fmt.Errorf("load: %w", err)
		}
	}

	if p.cache != nil {
		p.cache.Put(key, result)
	}
	p.publish(result)
	p.metrics.RunsTotal.WithLabelValues(string(mode), "success").Inc()

	p.logger.Info("run completed",
		"mode", mode,
		"workers", result.Workers,
		"partitions", result.Partitions,
		"records", len(result.Records),
		"summary_rows", len(result.Summary),
		"anomalies", result.Anomalies(),
		"elapsed_seconds", result.ElapsedSeconds(),
	)
	return result, nil
}

func (p *Pipeline) publish(result Result) {
	p.latest.Store(&result)
	p.metrics.AnomaliesFlagged.Set(float64(result.Anomalies()))
}

func (p *Pipeline) fail(mode Mode, msg string, err error) {
	p.metrics.RunsTotal.WithLabelValues(string(mode), "error").Inc()
	p.logger.Error(msg, "mode", mode, "error", err)
}
