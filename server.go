package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// APIServer exposes the pipeline over HTTP: live snapshot, roast
// controls, runtime parameters, persistence, and status.
type APIServer struct {
	config    *Config
	monitor   *Monitor
	recorder  *Recorder
	sensor    *SensorClient
	queue     *SampleQueue
	ws        *TelemetryWebSocketHandler
	startTime time.Time
}

// NewAPIServer creates the HTTP API facade
func NewAPIServer(config *Config, monitor *Monitor, recorder *Recorder, sensor *SensorClient, queue *SampleQueue, ws *TelemetryWebSocketHandler) *APIServer {
	return &APIServer{
		config:    config,
		monitor:   monitor,
		recorder:  recorder,
		sensor:    sensor,
		queue:     queue,
		ws:        ws,
		startTime: time.Now(),
	}
}

// RegisterRoutes attaches all API endpoints to the mux
func (s *APIServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.ws.HandleWebSocket)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/roast/start", s.handleRoastStart)
	mux.HandleFunc("/api/roast/stop", s.handleRoastStop)
	mux.HandleFunc("/api/roast/reset", s.handleRoastReset)
	mux.HandleFunc("/api/roast/crack", s.handleCrack)
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/save", s.handleSave)
	mux.HandleFunc("/api/ghost", s.handleGhost)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
	}
}

// handleHistory returns a freshly computed telemetry frame with the full
// aligned history and derived series
func (s *APIServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.CurrentFrame())
}

func (s *APIServer) handleRoastStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := s.monitor.StartRoast()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "started",
		"session_id": sessionID,
	})
}

func (s *APIServer) handleRoastStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.monitor.Session().Started() {
		http.Error(w, "No roast in progress", http.StatusConflict)
		return
	}
	s.monitor.StopRoast()
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "stopped"})
}

func (s *APIServer) handleRoastReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.monitor.ResetRoast()
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "reset"})
}

// handleCrack marks a crack event. The first call for a crack records
// its start, the second its end; further calls are no-ops.
func (s *APIServer) handleCrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.monitor.Session().Started() {
		http.Error(w, "No roast in progress", http.StatusConflict)
		return
	}

	var note string
	switch which := r.URL.Query().Get("which"); which {
	case "first":
		note = s.monitor.Session().MarkFirstCrack()
	case "second":
		note = s.monitor.Session().MarkSecondCrack()
	default:
		http.Error(w, "Parameter 'which' must be 'first' or 'second'", http.StatusBadRequest)
		return
	}

	if note == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "already_marked"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "marked",
		"note":   note,
	})
}

// handleParams reads or updates the runtime pipeline parameters. Updates
// take effect on the next tick without resetting history.
func (s *APIServer) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.monitor.Params())

	case http.MethodPost:
		// Start from the current values so partial updates work
		params := s.monitor.Params()
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		if err := validateParams(params); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.monitor.SetParams(params)
		writeJSON(w, http.StatusOK, params)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// validateParams range-checks runtime parameter updates
func validateParams(p PipelineParams) error {
	if p.SmoothingWindowSec < 1 || p.SmoothingWindowSec > 300 {
		return fmt.Errorf("smoothing_window_sec must be between 1 and 300")
	}
	if p.RORWindowSec < 1 || p.RORWindowSec > 600 {
		return fmt.Errorf("ror_window_sec must be between 1 and 600")
	}
	if p.SpikeThreshold <= 0 {
		return fmt.Errorf("spike_threshold must be positive")
	}
	if p.TargetTemp <= 0 {
		return fmt.Errorf("target_temp must be positive")
	}
	if p.TargetTimeSec <= 0 {
		return fmt.Errorf("target_time_sec must be positive")
	}
	return nil
}

// handleSave persists the current session to the profiles directory
func (s *APIServer) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.monitor.HistorySnapshot()
	session := s.monitor.Session()
	params := s.monitor.Params()

	csvPath, notesPath, err := s.recorder.Save(snap, session.Notes(), params.RORWindowSec)
	if err != nil {
		log.Printf("API: Save failed: %v", err)
		http.Error(w, fmt.Sprintf("Save failed: %v", err), http.StatusInternalServerError)
		return
	}

	session.AppendNote(fmt.Sprintf("\nData saved to %s\n", csvPath))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "saved",
		"csv_path":   csvPath,
		"notes_path": notesPath,
		"samples":    len(snap.Times),
	})
}

// handleGhost loads a saved profile for overlay, or lists the available
// profiles when no file is given
func (s *APIServer) handleGhost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	file := r.URL.Query().Get("file")
	if file == "" {
		names, err := s.recorder.ListProfiles()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to list profiles: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"profiles": names})
		return
	}

	ghost, err := s.recorder.LoadGhostProfile(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load profile: %v", err), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ghost)
}

// handleStatus reports service and host health
func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := map[string]interface{}{
		"uptime_seconds":   int(time.Since(s.startTime).Seconds()),
		"sensor_connected": s.sensor != nil && s.sensor.Connected(),
		"queue_depth":      s.queue.Len(),
		"ws_clients":       s.ws.ClientCount(),
		"roast_active":     s.monitor.Session().Started(),
		"session_id":       s.monitor.Session().ID(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory_percent"] = vm.UsedPercent
		status["memory_used_mb"] = vm.Used / 1024 / 1024
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}
