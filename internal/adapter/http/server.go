package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/city-temperature-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service is the pipeline surface the HTTP API reads from and triggers.
type Service interface {
	sharedobs.ReadinessChecker
	Latest() (pipeline.Result, bool)
	Mode() pipeline.Mode
	RunMode(ctx context.Context, mode pipeline.Mode) (pipeline.Result, error)
}

// Server exposes health, readiness, metrics, and the read API over the
// latest processing run.
type Server struct {
	httpServer *http.Server
	svc        Service
	weather    domain.WeatherLookup
	logger     *slog.Logger
}

// NewServer creates the HTTP server. weather may be nil, in which case the
// current-temperature route answers 503.
func NewServer(addr string, svc Service, weather domain.WeatherLookup, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		svc:     svc,
		weather: weather,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(svc))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/summary", s.handleSummary)
	mux.HandleFunc("GET /api/v1/cities/{city}/records", s.handleCityRecords)
	mux.HandleFunc("GET /api/v1/cities/{city}/current", s.handleCurrent)
	mux.HandleFunc("POST /api/v1/runs", s.handleRun)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
