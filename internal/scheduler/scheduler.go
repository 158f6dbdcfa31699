package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/city-temperature-etl/internal/pipeline"
	"github.com/go-co-op/gocron"
)

// Runner executes one processing run.
type Runner interface {
	RunOnce(ctx context.Context) (pipeline.Result, error)
}

// Scheduler re-runs the pipeline on a fixed interval. An interval of zero
// means a single run at startup.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler.
func New(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		interval:  interval,
		logger:    logger,
	}
}

// Start triggers the first run immediately and, when an interval is set,
// schedules the rest. Overlapping runs are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.interval <= 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(ctx)
		}()
		return nil
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		s.run(ctx)
	})
	if err != nil {
		s.cancel()
		return err
	}

	s.logger.Info("scheduler started", "interval", s.interval)
	s.scheduler.StartAsync()
	return nil
}

// Stop cancels any in-flight run and stops future ones.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Debug("scheduled run starting")
	if _, err := s.runner.RunOnce(ctx); err != nil {
		s.logger.Warn("scheduled run failed", "error", err)
	}
}
