package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/audera-data/quietwatch/internal/capture"
	"github.com/audera-data/quietwatch/internal/db"
	"github.com/audera-data/quietwatch/internal/monitor"
	"github.com/audera-data/quietwatch/internal/noise"
)

func setupTestServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()
	fname := t.Name() + ".db"
	_ = os.Remove(fname)

	dbInst, err := db.NewDB(fname)
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}

	cfg := noise.DefaultConfig()
	device := capture.NewMockDevice(-30)
	mon, err := monitor.New(cfg, dbInst, device, capture.StaticPermission(true), nil, nil, nil)
	if err != nil {
		t.Fatalf("failed to create monitor: %v", err)
	}
	server := NewServer(dbInst, mon, cfg)

	return server, dbInst
}

func cleanupTestServer(t *testing.T, dbInst *db.DB) {
	t.Helper()
	fname := t.Name() + ".db"
	dbInst.Close()
	_ = os.Remove(fname)
	_ = os.Remove(fname + "-shm")
	_ = os.Remove(fname + "-wal")
}

func intPtr(i int) *int {
	return &i
}

// upsertTestSummary stores a summary for the given day.
func upsertTestSummary(t *testing.T, dbInst *db.DB, day time.Time, score float64) {
	t.Helper()
	view := noise.DayView{
		Day:            day,
		QuietScore:     score,
		AverageDecibel: 48,
		SampleCount:    12,
		QuietestHour:   intPtr(4),
		NoisiestHour:   intPtr(18),
	}
	if _, err := dbInst.UpsertDaySummary(context.Background(), view); err != nil {
		t.Fatalf("UpsertDaySummary failed: %v", err)
	}
}

// insertTestSample inserts one raw sample.
func insertTestSample(t *testing.T, dbInst *db.DB, ts time.Time, decibel float64) {
	t.Helper()
	s := noise.Sample{ID: uuid.NewString(), Timestamp: ts, Decibel: decibel}
	if err := dbInst.InsertSample(context.Background(), s); err != nil {
		t.Fatalf("InsertSample failed: %v", err)
	}
}

// TestShowSummary tests fetching one day's summary by date
func TestShowSummary(t *testing.T) {
	server, dbInst := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	day := time.Date(2026, 3, 12, 0, 0, 0, 0, dbInst.Location())
	upsertTestSummary(t, dbInst, day, 77.5)

	req := httptest.NewRequest(http.MethodGet, "/api/summary?date=2026-03-12", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got db.DaySummary
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.QuietScore != 77.5 {
		t.Errorf("Expected score 77.5, got %v", got.QuietScore)
	}
	if got.QuietestHour == nil || *got.QuietestHour != 4 {
		t.Errorf("Expected quietest hour 4, got %v", got.QuietestHour)
	}
}

// TestShowSummaryNotFound tests the absent-day response
func TestShowSummaryNotFound(t *testing.T) {
	server, dbInst := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	req := httptest.NewRequest(http.MethodGet, "/api/summary?date=2026-03-12", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing summary, got %d", w.Code)
	}
}

// TestShowSummaryBadDate tests date parameter validation
func TestShowSummaryBadDate(t *testing.T) {
	server, dbInst := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	req := httptest.NewRequest(http.MethodGet, "/api/summary?date=12-03-2026", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed date, got %d", w.Code)
	}
}

// TestShowSummaryMethodNotAllowed tests method checking
func TestShowSummaryMethodNotAllowed(t *testing.T) {
	server, dbInst := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	req := httptest.NewRequest(http.MethodPost, "/api/summary", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

// TestShowHistory tests range queries over stored summaries
func TestShowHistory(t *testing.T) {
	server, dbInst := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	base := time.Date(2026, 3, 12, 0, 0, 0, 0, dbInst.Location())
	upsertTestSummary(t, dbInst, base, 80)
	upsertTestSummary(t, dbInst, base.AddDate(0, 0, -2), 60)
	upsertTestSummary(t, dbInst, base.AddDate(0, 0, -9), 40) // outside window

	req := httptest.NewRequest(http.MethodGet, "/api/history?days=7&date=2026-03-12", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got []db.DaySummary
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 summaries in window, got %d", len(got))
	}
	if got[0].QuietScore != 80 || got[1].QuietScore != 60 {
		t.Errorf("Expected newest-first scores [80 60], got [%v %v]",
			got[0].QuietScore, got[1].QuietScore)
	}
}

// TestShowHistoryEmptyWindow tests that an empty range yields an empty
// array, not null
func TestShowHistoryEmptyWindow(t *testing.T) {
	server, dbInst := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	req := httptest.NewRequest(http.MethodGet, "/api/history?days=7", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body == "null\n" {
		t.Error("Expected empty JSON array, got null")
	}
}

// TestShowHistoryBadDays tests the days parameter validation
func TestShowHistoryBadDays(t *testing.T) {
	server, dbInst := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	for _, days := range []string{"0", "-3", "week"} {
		req := httptest.NewRequest(http.MethodGet, "/api/history?days="+days, nil)
		w := httptest.NewRecorder()
		server.ServeMux().ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("days=%s: expected 400, got %d", days, w.Code)
		}
	}
}

// TestShowWeeklyAverage tests the weekly average, including the null
// no-data case
func TestShowWeeklyAverage(t *testing.T) {
	server, dbInst := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	// No data yet: average must be null, not zero.
	req := httptest.NewRequest(http.MethodGet, "/api/weekly-average?date=2026-03-12", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp map[string]*float64
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["weekly_average"] != nil {
		t.Errorf("Expected null average over empty window, got %v", *resp["weekly_average"])
	}

	base := time.Date(2026, 3, 12, 0, 0, 0, 0, dbInst.Location())
	upsertTestSummary(t, dbInst, base, 90)
	upsertTestSummary(t, dbInst, base.AddDate(0, 0, -1), 70)

	req = httptest.NewRequest(http.MethodGet, "/api/weekly-average?date=2026-03-12", nil)
	w = httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["weekly_average"] == nil || *resp["weekly_average"] != 80 {
		t.Errorf("Expected average 80, got %v", resp["weekly_average"])
	}
}

// TestListSamples tests raw sample retrieval for a day
func TestListSamples(t *testing.T) {
	server, dbInst := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	day := time.Date(2026, 3, 12, 0, 0, 0, 0, dbInst.Location())
	insertTestSample(t, dbInst, day.Add(8*time.Hour), 35)
	insertTestSample(t, dbInst, day.Add(9*time.Hour), 55)

	req := httptest.NewRequest(http.MethodGet, "/api/samples?date=2026-03-12", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got []noise.Sample
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(got))
	}
	if got[0].Decibel != 35 || got[1].Decibel != 55 {
		t.Errorf("Expected decibels [35 55] in timestamp order, got [%v %v]",
			got[0].Decibel, got[1].Decibel)
	}
}

// TestPurgeSamples tests the privacy purge: samples go, the summary stays
func TestPurgeSamples(t *testing.T) {
	server, dbInst := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)
	ctx := context.Background()

	day := time.Date(2026, 3, 12, 0, 0, 0, 0, dbInst.Location())
	insertTestSample(t, dbInst, day.Add(8*time.Hour), 35)
	insertTestSample(t, dbInst, day.Add(9*time.Hour), 55)
	upsertTestSummary(t, dbInst, day, 66)

	req := httptest.NewRequest(http.MethodDelete, "/api/samples?date=2026-03-12", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]int64
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["deleted"] != 2 {
		t.Errorf("Expected 2 deleted, got %d", resp["deleted"])
	}

	samples, err := dbInst.SamplesForDay(ctx, day)
	if err != nil {
		t.Fatalf("SamplesForDay failed: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("Expected no samples after purge, got %d", len(samples))
	}

	summary, err := dbInst.GetDaySummary(ctx, day)
	if err != nil {
		t.Fatalf("GetDaySummary failed: %v", err)
	}
	if summary == nil || summary.QuietScore != 66 {
		t.Error("Expected summary to survive the purge")
	}
}

// TestShowMonitor tests the monitor status endpoint
func TestShowMonitor(t *testing.T) {
	server, dbInst := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	req := httptest.NewRequest(http.MethodGet, "/api/monitor", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["state"] != "idle" {
		t.Errorf("Expected idle state, got %v", resp["state"])
	}
	if resp["latest_sample"] != nil {
		t.Errorf("Expected no latest sample, got %v", resp["latest_sample"])
	}
}

// TestCaptureNowEndpoint tests the on-demand capture trigger
func TestCaptureNowEndpoint(t *testing.T) {
	server, dbInst := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	req := httptest.NewRequest(http.MethodPost, "/api/monitor/capture", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]*noise.Sample
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["latest_sample"] == nil {
		t.Error("Expected a captured sample in the response")
	}
}

// TestMonitorTransitionMethodCheck tests that lifecycle endpoints reject GET
func TestMonitorTransitionMethodCheck(t *testing.T) {
	server, dbInst := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	for _, path := range []string{
		"/api/monitor/start", "/api/monitor/stop",
		"/api/monitor/foreground", "/api/monitor/background",
		"/api/monitor/capture",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		server.ServeMux().ServeHTTP(w, req)

		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405 for GET, got %d", path, w.Code)
		}
	}
}

// TestShowConfig tests the config inspection endpoint
func TestShowConfig(t *testing.T) {
	server, dbInst := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp map[string]float64
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["sample_interval_seconds"] != 60 {
		t.Errorf("Expected 60s interval, got %v", resp["sample_interval_seconds"])
	}
	if resp["quiet_threshold"] != 40 || resp["moderate_threshold"] != 70 || resp["loud_threshold"] != 85 {
		t.Errorf("Unexpected thresholds in config response: %v", resp)
	}
}

// TestStatusCodeColor tests the request log status coloring
func TestStatusCodeColor(t *testing.T) {
	cases := []struct {
		code  int
		color string
	}{
		{200, colorBoldGreen},
		{204, colorBoldGreen},
		{404, colorYellow},
		{500, colorBoldRed},
	}
	for _, tc := range cases {
		got := statusCodeColor(tc.code)
		if len(got) == 0 || got[:len(tc.color)] != tc.color {
			t.Errorf("statusCodeColor(%d) = %q, expected prefix %q", tc.code, got, tc.color)
		}
	}
}
