package http

import (
	"errors"
	"net/http"

	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/city-temperature-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"upstream_status,omitempty"`
}

type runInfo struct {
	Mode           pipeline.Mode `json:"mode"`
	Workers        int           `json:"workers"`
	Partitions     int           `json:"partitions"`
	Records        int           `json:"records"`
	SummaryRows    int           `json:"summary_rows"`
	Anomalies      int           `json:"anomalies"`
	ElapsedSeconds float64       `json:"elapsed_seconds"`
	Fingerprint    string        `json:"fingerprint"`
	Cached         bool          `json:"cached"`
}

type summaryResponse struct {
	Run  runInfo             `json:"run"`
	Rows []domain.SummaryRow `json:"rows"`
}

type recordsResponse struct {
	City    string                   `json:"city"`
	Records []domain.ProcessedRecord `json:"records"`
}

func newRunInfo(r pipeline.Result) runInfo {
	return runInfo{
		Mode:           r.Mode,
		Workers:        r.Workers,
		Partitions:     r.Partitions,
		Records:        len(r.Records),
		SummaryRows:    len(r.Summary),
		Anomalies:      r.Anomalies(),
		ElapsedSeconds: r.ElapsedSeconds(),
		Fingerprint:    r.Fingerprint,
		Cached:         r.Cached,
	}
}

// latest writes 503 and returns false when no run has completed yet.
func (s *Server) latest(w http.ResponseWriter) (pipeline.Result, bool) {
	res, ok := s.svc.Latest()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, errorResponse{Error: pipeline.ErrNoResult.Error()})
	}
	return res, ok
}

// handleSummary returns the summary table, optionally filtered by the city
// and season query parameters.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	res, ok := s.latest(w)
	if !ok {
		return
	}

	city := r.URL.Query().Get("city")
	season := domain.Season(r.URL.Query().Get("season"))
	rows := make([]domain.SummaryRow, 0, len(res.Summary))
	for _, row := range res.Summary {
		if city != "" && row.City != city {
			continue
		}
		if season != "" && row.Season != season {
			continue
		}
		rows = append(rows, row)
	}
	sharedobs.WriteJSON(w, http.StatusOK, summaryResponse{Run: newRunInfo(res), Rows: rows})
}

// handleCityRecords returns a city's processed series. With
// anomalies=true only anomalous records are returned.
func (s *Server) handleCityRecords(w http.ResponseWriter, r *http.Request) {
	res, ok := s.latest(w)
	if !ok {
		return
	}

	city := r.PathValue("city")
	records := res.CityRecords(city)
	if len(records) == 0 {
		sharedobs.WriteJSON(w, http.StatusNotFound, errorResponse{Error: "unknown city " + city})
		return
	}

	if r.URL.Query().Get("anomalies") == "true" {
		flagged := make([]domain.ProcessedRecord, 0)
		for _, rec := range records {
			if rec.IsAnomaly {
				flagged = append(flagged, rec)
			}
		}
		records = flagged
	}
	sharedobs.WriteJSON(w, http.StatusOK, recordsResponse{City: city, Records: records})
}

// handleCurrent compares a live temperature against the city's baseline for
// the current season.
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	if s.weather == nil {
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "weather lookup is not configured"})
		return
	}
	res, ok := s.latest(w)
	if !ok {
		return
	}

	city := r.PathValue("city")
	temp, err := s.weather.CurrentTemperature(r.Context(), city)
	if err != nil {
		resp := errorResponse{Error: err.Error()}
		var le *domain.LookupError
		if errors.As(err, &le) {
			resp.Status = le.Status
		}
		sharedobs.WriteJSON(w, http.StatusBadGateway, resp)
		return
	}

	comparison, err := domain.CompareCurrent(city, temp, domain.Now(), res.Summary)
	if errors.Is(err, domain.ErrNoBaseline) {
		sharedobs.WriteJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, comparison)
}

// handleRun triggers a processing run in the mode given by the mode query
// parameter, or the configured default.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	mode := s.svc.Mode()
	if m := r.URL.Query().Get("mode"); m != "" {
		parsed, err := pipeline.ParseMode(m)
		if err != nil {
			sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		mode = parsed
	}

	res, err := s.svc.RunMode(r.Context(), mode)
	if err != nil {
		s.logger.Warn("triggered run failed", "mode", mode, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, newRunInfo(res))
}
