package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// temperature pipeline.
type Metrics struct {
	RecordsExtracted prometheus.Counter
	RecordsProcessed prometheus.Counter
	RunsTotal        *prometheus.CounterVec   // labels: mode, outcome={success,error}
	RunDuration      *prometheus.HistogramVec // labels: mode
	PartitionsTotal  *prometheus.CounterVec   // labels: outcome={success,error}
	AnomaliesFlagged prometheus.Gauge
	PipelineRunning  prometheus.Gauge

	ResultCache *prometheus.CounterVec // labels: result={hit,miss}

	// Weather lookup metrics.
	LookupRequests    *prometheus.CounterVec // labels: outcome={success,error}
	LookupAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RecordsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "temperature_etl",
			Name:      "records_extracted_total",
			Help:      "Total records read from the configured source.",
		}),
		RecordsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "temperature_etl",
			Name:      "records_processed_total",
			Help:      "Total records that completed series processing.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "temperature_etl",
			Name:      "runs_total",
			Help:      "Processing runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "temperature_etl",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the partitioned processing step.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"mode"}),
		PartitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "temperature_etl",
			Name:      "partitions_total",
			Help:      "City partitions processed by outcome.",
		}, []string{"outcome"}),
		AnomaliesFlagged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "temperature_etl",
			Name:      "anomalies_flagged",
			Help:      "Anomalous records in the latest successful run.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "temperature_etl",
			Name:      "pipeline_running",
			Help:      "1 while a processing run is in flight.",
		}),
		ResultCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "temperature_etl",
			Name:      "result_cache_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}),
		LookupRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "temperature_etl",
			Name:      "weather_lookup_requests_total",
			Help:      "Current-weather lookups by outcome.",
		}, []string{"outcome"}),
		LookupAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "temperature_etl",
			Name:      "weather_lookup_duration_seconds",
			Help:      "Weather API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}

	prometheus.MustRegister(
		m.RecordsExtracted,
		m.RecordsProcessed,
		m.RunsTotal,
		m.RunDuration,
		m.PartitionsTotal,
		m.AnomaliesFlagged,
		m.PipelineRunning,
		m.ResultCache,
		m.LookupRequests,
		m.LookupAPIDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RecordsExtracted:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "temperature_etl", Name: "records_extracted_total"}),
		RecordsProcessed:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "temperature_etl", Name: "records_processed_total"}),
		RunsTotal:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "temperature_etl", Name: "runs_total"}, []string{"mode", "outcome"}),
		RunDuration:       prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "temperature_etl", Name: "run_duration_seconds"}, []string{"mode"}),
		PartitionsTotal:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "temperature_etl", Name: "partitions_total"}, []string{"outcome"}),
		AnomaliesFlagged:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "temperature_etl", Name: "anomalies_flagged"}),
		PipelineRunning:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "temperature_etl", Name: "pipeline_running"}),
		ResultCache:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "temperature_etl", Name: "result_cache_total"}, []string{"result"}),
		LookupRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "temperature_etl", Name: "weather_lookup_requests_total"}, []string{"outcome"}),
		LookupAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "temperature_etl", Name: "weather_lookup_duration_seconds"}),
	}
}
