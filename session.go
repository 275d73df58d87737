package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RoastSession tracks one roast: start time, crack events, and the
// append-only notes log. Created fresh on start, cleared on reset.
type RoastSession struct {
	mu sync.RWMutex

	id        string
	started   bool
	startTime time.Time

	firstCrackStart  time.Time
	firstCrackEnd    time.Time
	secondCrackStart time.Time
	secondCrackEnd   time.Time

	notes strings.Builder
}

// NewRoastSession creates an idle session
func NewRoastSession() *RoastSession {
	return &RoastSession{}
}

// formatMMSS renders elapsed seconds as mm:ss for notes and logs
func formatMMSS(seconds float64) string {
	m := int(seconds) / 60
	s := int(seconds) % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Start records the roast start time and writes the header notes.
// Starting an already-started session restarts it.
func (rs *RoastSession) Start(targetTemp float64, targetTimeSec int, smoothWindowSec, rorWindowSec int, unit string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.id = uuid.NewString()
	rs.started = true
	rs.startTime = time.Now()
	rs.firstCrackStart = time.Time{}
	rs.firstCrackEnd = time.Time{}
	rs.secondCrackStart = time.Time{}
	rs.secondCrackEnd = time.Time{}

	rs.notes.Reset()
	fmt.Fprintf(&rs.notes, "Roast started at %s\n", rs.startTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&rs.notes, "Target Temperature: %.0f°%s\n", targetTemp, unit)
	fmt.Fprintf(&rs.notes, "Target Time: %s\n", formatMMSS(float64(targetTimeSec)))
	fmt.Fprintf(&rs.notes, "Smoothing Window: %ds, ROR Window: %ds\n\n", smoothWindowSec, rorWindowSec)
}

// Stop appends an elapsed-time-stamped stop note. The session stays
// started so its history keeps its time base until reset.
func (rs *RoastSession) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.started {
		return
	}
	elapsed := time.Since(rs.startTime).Seconds()
	fmt.Fprintf(&rs.notes, "\nRoast stopped at %s\n", formatMMSS(elapsed))
}

// Reset clears all session state and notes
func (rs *RoastSession) Reset() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.id = ""
	rs.started = false
	rs.startTime = time.Time{}
	rs.firstCrackStart = time.Time{}
	rs.firstCrackEnd = time.Time{}
	rs.secondCrackStart = time.Time{}
	rs.secondCrackEnd = time.Time{}
	rs.notes.Reset()
}

// MarkFirstCrack records first-crack start on the first call and
// first-crack end on the second; further calls are ignored, as is any
// call before the roast has started. Returns the note written, or "".
func (rs *RoastSession) MarkFirstCrack() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.started {
		return ""
	}
	now := time.Now()
	elapsed := formatMMSS(now.Sub(rs.startTime).Seconds())

	var note string
	switch {
	case rs.firstCrackStart.IsZero():
		rs.firstCrackStart = now
		note = fmt.Sprintf("First Crack Start: %s\n", elapsed)
	case rs.firstCrackEnd.IsZero():
		rs.firstCrackEnd = now
		note = fmt.Sprintf("First Crack End: %s\n", elapsed)
	default:
		return ""
	}
	rs.notes.WriteString(note)
	return note
}

// MarkSecondCrack mirrors MarkFirstCrack for the second crack
func (rs *RoastSession) MarkSecondCrack() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.started {
		return ""
	}
	now := time.Now()
	elapsed := formatMMSS(now.Sub(rs.startTime).Seconds())

	var note string
	switch {
	case rs.secondCrackStart.IsZero():
		rs.secondCrackStart = now
		note = fmt.Sprintf("Second Crack Start: %s\n", elapsed)
	case rs.secondCrackEnd.IsZero():
		rs.secondCrackEnd = now
		note = fmt.Sprintf("Second Crack End: %s\n", elapsed)
	default:
		return ""
	}
	rs.notes.WriteString(note)
	return note
}

// AppendNote adds a free-form line to the notes log
func (rs *RoastSession) AppendNote(line string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.notes.WriteString(line)
}

// Started reports whether a roast is in progress
func (rs *RoastSession) Started() bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.started
}

// StartTime returns the roast start time, zero if not started
func (rs *RoastSession) StartTime() time.Time {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if !rs.started {
		return time.Time{}
	}
	return rs.startTime
}

// ID returns the session UUID, empty if not started
func (rs *RoastSession) ID() string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.id
}

// Notes returns the notes log accumulated so far
func (rs *RoastSession) Notes() string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.notes.String()
}
