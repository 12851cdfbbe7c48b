// Package api exposes the read-and-control HTTP surface consumed by
// dashboard and history clients: daily summaries, range queries, raw
// sample access for the privacy purge flow, and monitor lifecycle control.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/audera-data/quietwatch/internal/db"
	"github.com/audera-data/quietwatch/internal/monitor"
	"github.com/audera-data/quietwatch/internal/noise"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"
const colorYellow = "\033[33m"

type Server struct {
	db  *db.DB
	mon *monitor.Monitor
	cfg noise.Config
}

func NewServer(database *db.DB, mon *monitor.Monitor, cfg noise.Config) *Server {
	return &Server{
		db:  database,
		mon: mon,
		cfg: cfg,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LogRequest wraps a handler with colorized request logging.
func LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf("%s %s %s%s%s %.2fms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/summary", s.showSummary)
	mux.HandleFunc("/api/history", s.showHistory)
	mux.HandleFunc("/api/weekly-average", s.showWeeklyAverage)
	mux.HandleFunc("/api/samples", s.handleSamples)
	mux.HandleFunc("/api/monitor", s.showMonitor)
	mux.HandleFunc("/api/monitor/start", s.startMonitor)
	mux.HandleFunc("/api/monitor/stop", s.stopMonitor)
	mux.HandleFunc("/api/monitor/foreground", s.foregroundMonitor)
	mux.HandleFunc("/api/monitor/background", s.backgroundMonitor)
	mux.HandleFunc("/api/monitor/capture", s.captureNow)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// parseDateParam reads an optional date=YYYY-MM-DD query parameter,
// defaulting to today.
func (s *Server) parseDateParam(r *http.Request) (time.Time, error) {
	d := r.URL.Query().Get("date")
	if d == "" {
		return time.Now().In(s.db.Location()), nil
	}
	day, err := time.ParseInLocation("2006-01-02", d, s.db.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid 'date' parameter %q", d)
	}
	return day, nil
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	day, err := s.parseDateParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.db.GetDaySummary(r.Context(), day)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve summary: %v", err))
		return
	}
	if summary == nil {
		s.writeJSONError(w, http.StatusNotFound, "No summary for that day")
		return
	}

	if err := json.NewEncoder(w).Encode(summary); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write summary")
	}
}

func (s *Server) showHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	days := 7
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'days' parameter")
			return
		}
		days = parsed
	}

	ref, err := s.parseDateParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	summaries, err := s.db.SummariesForLastDays(r.Context(), days, ref)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve history: %v", err))
		return
	}
	if summaries == nil {
		summaries = []db.DaySummary{}
	}

	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write history")
	}
}

func (s *Server) showWeeklyAverage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ref, err := s.parseDateParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	avg, err := s.db.WeeklyAverage(r.Context(), ref)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to compute weekly average: %v", err))
		return
	}

	// avg is null when no summaries exist in the window; clients must not
	// confuse absence of data with a zero score.
	resp := map[string]any{"weekly_average": avg}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write weekly average")
	}
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		s.listSamples(w, r)
	case http.MethodDelete:
		s.purgeSamples(w, r)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	day, err := s.parseDateParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	samples, err := s.db.SamplesForDay(r.Context(), day)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve samples: %v", err))
		return
	}
	if samples == nil {
		samples = []noise.Sample{}
	}

	if err := json.NewEncoder(w).Encode(samples); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write samples")
	}
}

// purgeSamples bulk-deletes one day's raw samples. The day's summary is
// deliberately retained: aggregates survive while raw data is discarded.
func (s *Server) purgeSamples(w http.ResponseWriter, r *http.Request) {
	day, err := s.parseDateParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := s.db.DeleteSamplesForDay(r.Context(), day)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to purge samples: %v", err))
		return
	}

	resp := map[string]int64{"deleted": deleted}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write purge result")
	}
}

func (s *Server) showMonitor(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	resp := map[string]any{
		"state":         s.mon.State().String(),
		"latest_sample": s.mon.Latest(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write monitor status")
	}
}

func (s *Server) startMonitor(w http.ResponseWriter, r *http.Request) {
	s.monitorTransition(w, r, s.mon.Start)
}

func (s *Server) stopMonitor(w http.ResponseWriter, r *http.Request) {
	s.monitorTransition(w, r, s.mon.Stop)
}

func (s *Server) foregroundMonitor(w http.ResponseWriter, r *http.Request) {
	s.monitorTransition(w, r, s.mon.EnterForeground)
}

func (s *Server) backgroundMonitor(w http.ResponseWriter, r *http.Request) {
	s.monitorTransition(w, r, s.mon.EnterBackground)
}

func (s *Server) monitorTransition(w http.ResponseWriter, r *http.Request, transition func()) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	transition()

	resp := map[string]string{"state": s.mon.State().String()}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write monitor state")
	}
}

func (s *Server) captureNow(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.mon.CaptureNow(r.Context()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Capture failed: %v", err))
		return
	}

	resp := map[string]any{"latest_sample": s.mon.Latest()}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write capture result")
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	config := map[string]any{
		"sample_interval_seconds": s.cfg.SampleInterval.Seconds(),
		"quiet_threshold":         s.cfg.QuietThreshold,
		"moderate_threshold":      s.cfg.ModerateThreshold,
		"loud_threshold":          s.cfg.LoudThreshold,
	}
	if err := json.NewEncoder(w).Encode(config); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
	}
}
