package main

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Recorder persists roast sessions to a profiles directory as a CSV of
// the aligned history plus a companion plain-text notes file.
type Recorder struct {
	dir string
}

// NewRecorder creates a recorder writing into dir
func NewRecorder(dir string) *Recorder {
	return &Recorder{dir: dir}
}

// csvHeader is the fixed session log header
var csvHeader = []string{"time", "channel_a_temp", "channel_b_temp", "rate_of_rise"}

// Save writes the aligned history and the session notes to timestamped
// files and returns their paths. The rate-of-rise column is recomputed
// at save time over the raw (unsmoothed) channel B series, regardless of
// what the display was smoothing. Errors are returned, never swallowed:
// a failed save must be visible to the operator.
func (r *Recorder) Save(snap HistorySnapshot, notes string, rorWindowSec int) (csvPath, notesPath string, err error) {
	if len(snap.Times) == 0 {
		return "", "", fmt.Errorf("no samples to save")
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create profiles directory: %w", err)
	}

	// Second-granularity timestamps keep filenames unique in normal use
	stamp := time.Now().Format("20060102_150405")
	csvPath = filepath.Join(r.dir, fmt.Sprintf("roast_data_%s.csv", stamp))
	notesPath = filepath.Join(r.dir, fmt.Sprintf("roast_notes_%s.txt", stamp))

	ror := RateOfRise(snap.Elapsed, snap.ChannelB, float64(rorWindowSec))

	f, err := os.Create(csvPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create session log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return "", "", fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i := range snap.Times {
		row := []string{
			snap.ISO[i],
			formatTemp(snap.ChannelA[i]),
			formatTemp(snap.ChannelB[i]),
			formatTemp(ror[i]),
		}
		if err := w.Write(row); err != nil {
			return "", "", fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", "", fmt.Errorf("failed to flush session log: %w", err)
	}

	if err := os.WriteFile(notesPath, []byte(notes), 0644); err != nil {
		return "", "", fmt.Errorf("failed to write notes file: %w", err)
	}

	log.Printf("Recorder: Saved %d samples to %s", len(snap.Times), csvPath)
	return csvPath, notesPath, nil
}

// formatTemp renders a numeric CSV cell to two decimals; NaN (a reading
// that never existed) becomes an empty cell
func formatTemp(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// GhostProfile is a previously saved roast loaded for visual comparison
// against the live trace
type GhostProfile struct {
	Times    []float64 `json:"times"`
	ChannelA []float64 `json:"channel_a"`
	ChannelB []float64 `json:"channel_b"`
}

// LoadGhostProfile reads a saved session CSV for overlay. The header row
// is skipped and malformed rows (wrong column count or non-numeric
// temperatures) are silently dropped. Each kept row gets a synthetic
// time coordinate equal to its index rather than its recorded elapsed
// time; overlays are therefore only strictly comparable when the
// original sampling interval was uniform. Known approximation, kept.
func (r *Recorder) LoadGhostProfile(name string) (*GhostProfile, error) {
	path := filepath.Join(r.dir, filepath.Base(name))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // Row length validated per-row below

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}

	ghost := &GhostProfile{}
	for i, rec := range records {
		if i == 0 {
			continue // Header
		}
		if len(rec) < 3 {
			continue
		}
		a, errA := strconv.ParseFloat(rec[1], 64)
		b, errB := strconv.ParseFloat(rec[2], 64)
		if errA != nil || errB != nil {
			continue
		}
		ghost.Times = append(ghost.Times, float64(len(ghost.Times)))
		ghost.ChannelA = append(ghost.ChannelA, a)
		ghost.ChannelB = append(ghost.ChannelB, b)
	}
	return ghost, nil
}

// ListProfiles returns the saved session CSV filenames, newest last
func (r *Recorder) ListProfiles() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read profiles directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".csv" {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
