package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/city-temperature-etl/internal/adapter/csvfile"
	httpadapter "github.com/couchcryptid/city-temperature-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/city-temperature-etl/internal/adapter/kafka"
	"github.com/couchcryptid/city-temperature-etl/internal/adapter/openweather"
	"github.com/couchcryptid/city-temperature-etl/internal/config"
	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/city-temperature-etl/internal/observability"
	"github.com/couchcryptid/city-temperature-etl/internal/pipeline"
	"github.com/couchcryptid/city-temperature-etl/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	mode, err := pipeline.ParseMode(cfg.ProcessingMode)
	if err != nil {
		logger.Error("invalid processing mode", "error", err)
		os.Exit(1)
	}

	var extractor pipeline.Extractor
	switch cfg.Source {
	case config.SourceKafka:
		extractor = kafkaadapter.NewReader(cfg, logger)
		logger.Info("source: kafka", "topic", cfg.KafkaSourceTopic, "partition", cfg.KafkaSourcePartition)
	default:
		extractor = csvfile.NewReader(cfg.DatasetPath, logger)
		logger.Info("source: csv", "path", cfg.DatasetPath)
	}

	// Loader is optional; without it results are only served over HTTP.
	var (
		loader pipeline.Loader
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaSinkEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		loader = writer
		logger.Info("kafka sink enabled", "records_topic", cfg.KafkaRecordsTopic, "summary_topic", cfg.KafkaSummaryTopic)
	}

	// Weather lookup is feature-flagged via OPENWEATHER_API_KEY.
	var weather domain.WeatherLookup
	if cfg.OpenWeatherEnabled {
		weather = openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.OpenWeatherTimeout, metrics, logger)
		logger.Info("openweather lookup enabled", "timeout", cfg.OpenWeatherTimeout)
	} else {
		logger.Info("openweather lookup disabled")
	}

	executor := pipeline.NewExecutor(logger, metrics, pipeline.WithWorkers(cfg.Workers))
	cache := pipeline.NewResultCache(cfg.ResultCacheSize, metrics)
	p := pipeline.New(extractor, executor, loader, cache, mode, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, weather, logger)
	sched := scheduler.New(p, cfg.RunInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start processing runs.
	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
