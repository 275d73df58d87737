package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) (*APIServer, *Monitor, *http.ServeMux) {
	t.Helper()
	config := testConfig()
	config.Recorder.ProfilesDir = t.TempDir()

	queue := NewSampleQueue()
	monitor := NewMonitor(config, queue, nil, nil)
	recorder := NewRecorder(config.Recorder.ProfilesDir)
	ws := NewTelemetryWebSocketHandler(monitor)

	srv := NewAPIServer(config, monitor, recorder, nil, queue, ws)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return srv, monitor, mux
}

func doRequest(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAPIRoastLifecycle(t *testing.T) {
	_, monitor, mux := newTestServer(t)

	// Crack before start is a conflict
	if rec := doRequest(mux, http.MethodPost, "/api/roast/crack?which=first", ""); rec.Code != http.StatusConflict {
		t.Errorf("crack before start: status = %d, want 409", rec.Code)
	}

	rec := doRequest(mux, http.MethodPost, "/api/roast/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start: status = %d, body %s", rec.Code, rec.Body)
	}
	var started map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &started)
	if started["session_id"] == "" {
		t.Error("start response missing session_id")
	}

	rec = doRequest(mux, http.MethodPost, "/api/roast/crack?which=first", "")
	var crack map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &crack)
	if crack["status"] != "marked" {
		t.Errorf("first crack status = %v, want marked", crack["status"])
	}

	if rec := doRequest(mux, http.MethodPost, "/api/roast/crack?which=drum", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad which: status = %d, want 400", rec.Code)
	}

	if rec := doRequest(mux, http.MethodPost, "/api/roast/stop", ""); rec.Code != http.StatusOK {
		t.Errorf("stop: status = %d", rec.Code)
	}
	if rec := doRequest(mux, http.MethodPost, "/api/roast/reset", ""); rec.Code != http.StatusOK {
		t.Errorf("reset: status = %d", rec.Code)
	}
	if monitor.Session().Started() {
		t.Error("session still started after reset")
	}
}

func TestAPIParams(t *testing.T) {
	_, monitor, mux := newTestServer(t)

	rec := doRequest(mux, http.MethodGet, "/api/params", "")
	var params PipelineParams
	if err := json.Unmarshal(rec.Body.Bytes(), &params); err != nil {
		t.Fatalf("failed to decode params: %v", err)
	}
	if params.SmoothingWindowSec != 3 {
		t.Errorf("smoothing window = %d, want 3", params.SmoothingWindowSec)
	}

	// Partial update keeps the other fields
	rec = doRequest(mux, http.MethodPost, "/api/params", `{"ror_window_sec": 60}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("post params: status = %d, body %s", rec.Code, rec.Body)
	}
	got := monitor.Params()
	if got.RORWindowSec != 60 {
		t.Errorf("ror window = %d, want 60", got.RORWindowSec)
	}
	if got.SmoothingWindowSec != 3 {
		t.Errorf("smoothing window = %d, want 3 (unchanged)", got.SmoothingWindowSec)
	}

	// Out-of-range values are rejected
	if rec := doRequest(mux, http.MethodPost, "/api/params", `{"smoothing_window_sec": 0}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid params: status = %d, want 400", rec.Code)
	}
}

func TestAPISaveAndGhost(t *testing.T) {
	_, monitor, mux := newTestServer(t)

	// Save with no data fails
	if rec := doRequest(mux, http.MethodPost, "/api/save", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("empty save: status = %d, want 500", rec.Code)
	}

	base := time.Now()
	monitor.queue.Push(sampleAt(ChannelA, base, 200))
	monitor.queue.Push(sampleAt(ChannelB, base, 150))
	monitor.queue.Push(sampleAt(ChannelA, base.Add(time.Second), 201))
	monitor.queue.Push(sampleAt(ChannelB, base.Add(time.Second), 151))
	monitor.processTick()

	rec := doRequest(mux, http.MethodPost, "/api/save", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("save: status = %d, body %s", rec.Code, rec.Body)
	}
	var saved map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &saved)
	if saved["samples"] != float64(2) {
		t.Errorf("saved samples = %v, want 2", saved["samples"])
	}

	// The save shows up in the profile list
	rec = doRequest(mux, http.MethodGet, "/api/ghost", "")
	var listing struct {
		Profiles []string `json:"profiles"`
	}
	json.Unmarshal(rec.Body.Bytes(), &listing)
	if len(listing.Profiles) != 1 {
		t.Fatalf("profiles = %v, want one entry", listing.Profiles)
	}

	// And loads back as a ghost profile
	rec = doRequest(mux, http.MethodGet, "/api/ghost?file="+listing.Profiles[0], "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ghost load: status = %d, body %s", rec.Code, rec.Body)
	}
	var ghost GhostProfile
	json.Unmarshal(rec.Body.Bytes(), &ghost)
	if len(ghost.ChannelA) != 2 || ghost.ChannelA[0] != 200 {
		t.Errorf("ghost ChannelA = %v, want [200 201]", ghost.ChannelA)
	}

	if rec := doRequest(mux, http.MethodGet, "/api/ghost?file=missing.csv", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing ghost: status = %d, want 404", rec.Code)
	}
}

func TestAPIHistoryAndStatus(t *testing.T) {
	_, monitor, mux := newTestServer(t)

	base := time.Now()
	monitor.queue.Push(sampleAt(ChannelA, base, 200))
	monitor.queue.Push(sampleAt(ChannelB, base, 150))
	monitor.processTick()

	rec := doRequest(mux, http.MethodGet, "/api/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history: status = %d", rec.Code)
	}
	var frame TelemetryFrame
	if err := json.Unmarshal(rec.Body.Bytes(), &frame); err != nil {
		t.Fatalf("failed to decode history frame: %v", err)
	}
	if len(frame.ChannelA) != 1 || frame.ChannelA[0] != 200 {
		t.Errorf("history ChannelA = %v, want [200]", frame.ChannelA)
	}

	rec = doRequest(mux, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: status = %d", rec.Code)
	}
	var status map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &status)
	if status["sensor_connected"] != false {
		t.Errorf("sensor_connected = %v, want false", status["sensor_connected"])
	}
	if status["roast_active"] != false {
		t.Errorf("roast_active = %v, want false", status["roast_active"])
	}
}

func TestAPIMethodGuards(t *testing.T) {
	_, _, mux := newTestServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/roast/start"},
		{http.MethodGet, "/api/save"},
		{http.MethodPost, "/api/history"},
		{http.MethodPost, "/api/ghost"},
		{http.MethodDelete, "/api/params"},
	}
	for _, tt := range tests {
		if rec := doRequest(mux, tt.method, tt.path, ""); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: status = %d, want 405", tt.method, tt.path, rec.Code)
		}
	}
}
