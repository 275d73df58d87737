package main

import (
	"math"
	"testing"
	"time"
)

func TestAlignedHistoryInterleavedPairsIntoRows(t *testing.T) {
	// Interleaved A,B,A,B notifications one second apart per channel must
	// produce exactly two aligned rows, not four.
	h := NewAlignedHistory(3600)
	t0 := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Second)

	h.Append(sampleAt(ChannelA, t0, 200))
	h.Append(sampleAt(ChannelB, t0, 150))
	h.Append(sampleAt(ChannelA, t1, 202))
	h.Append(sampleAt(ChannelB, t1, 151))

	if h.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", h.Len())
	}

	snap := h.Snapshot(time.Time{})
	if snap.ChannelA[0] != 200 || snap.ChannelB[0] != 150 {
		t.Errorf("row 0 = (%v, %v), want (200, 150)", snap.ChannelA[0], snap.ChannelB[0])
	}
	if snap.ChannelA[1] != 202 || snap.ChannelB[1] != 151 {
		t.Errorf("row 1 = (%v, %v), want (202, 151)", snap.ChannelA[1], snap.ChannelB[1])
	}
	if snap.Elapsed[0] != 0 || snap.Elapsed[1] != 1 {
		t.Errorf("elapsed = %v, want [0 1]", snap.Elapsed)
	}
}

func TestAlignedHistoryLeadingHoleIsNaN(t *testing.T) {
	// Channel B starts notifying two rows in; its first two entries have
	// no value to carry forward.
	h := NewAlignedHistory(3600)
	base := time.Now()

	h.Append(sampleAt(ChannelA, base, 200))
	h.Append(sampleAt(ChannelA, base.Add(time.Second), 201))
	h.Append(sampleAt(ChannelA, base.Add(2*time.Second), 202))
	h.Append(sampleAt(ChannelB, base.Add(2*time.Second), 150))

	snap := h.Snapshot(time.Time{})
	if len(snap.ChannelB) != 3 {
		t.Fatalf("snapshot rows = %d, want 3", len(snap.ChannelB))
	}
	if !math.IsNaN(snap.ChannelB[0]) || !math.IsNaN(snap.ChannelB[1]) {
		t.Errorf("leading holes = (%v, %v), want NaN", snap.ChannelB[0], snap.ChannelB[1])
	}
	if snap.ChannelB[2] != 150 {
		t.Errorf("ChannelB[2] = %v, want 150", snap.ChannelB[2])
	}
}

func TestAlignedHistoryForwardFill(t *testing.T) {
	// A missed B reading in the middle carries the previous B value
	h := NewAlignedHistory(3600)
	base := time.Now()

	h.Append(sampleAt(ChannelA, base, 200))
	h.Append(sampleAt(ChannelB, base, 150))
	h.Append(sampleAt(ChannelA, base.Add(time.Second), 201))
	h.Append(sampleAt(ChannelA, base.Add(2*time.Second), 202))
	h.Append(sampleAt(ChannelB, base.Add(2*time.Second), 152))

	snap := h.Snapshot(time.Time{})
	if len(snap.ChannelB) != 3 {
		t.Fatalf("snapshot rows = %d, want 3", len(snap.ChannelB))
	}
	// The missed tick carries the last known value; the new reading lands
	// in its own row at the time it was captured
	if snap.ChannelB[1] != 150 {
		t.Errorf("ChannelB[1] = %v, want 150 (forward-filled)", snap.ChannelB[1])
	}
	if snap.ChannelB[2] != 152 {
		t.Errorf("ChannelB[2] = %v, want 152", snap.ChannelB[2])
	}
}

func TestAlignedHistoryLateChannelDoesNotBackfill(t *testing.T) {
	// Channel B joins a full minute in: its first reading must land in
	// the newest row, leaving every earlier row a hole, not be recorded
	// against an old timestamp.
	h := NewAlignedHistory(3600)
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 60; i++ {
		h.Append(sampleAt(ChannelA, base.Add(time.Duration(i)*time.Second), float64(200+i)))
	}
	h.Append(sampleAt(ChannelB, base.Add(62*time.Second), 999))

	if h.Len() != 60 {
		t.Fatalf("Len() = %d, want 60", h.Len())
	}
	snap := h.Snapshot(time.Time{})
	for i := 0; i < 59; i++ {
		if !math.IsNaN(snap.ChannelB[i]) {
			t.Fatalf("ChannelB[%d] = %v, want NaN", i, snap.ChannelB[i])
		}
	}
	if snap.ChannelB[59] != 999 {
		t.Errorf("ChannelB[59] = %v, want 999", snap.ChannelB[59])
	}
}

func TestAlignedHistoryDropoutStaysFlatNotRewritten(t *testing.T) {
	// B stops notifying mid-run while A keeps producing. When B returns,
	// its reading pairs with the newest row; the silent stretch renders
	// as a forward-filled flat segment where it happened.
	h := NewAlignedHistory(3600)
	base := time.Now()

	h.Append(sampleAt(ChannelA, base, 200))
	h.Append(sampleAt(ChannelB, base, 150))
	for i := 1; i <= 4; i++ {
		h.Append(sampleAt(ChannelA, base.Add(time.Duration(i)*time.Second), float64(200+i)))
	}
	h.Append(sampleAt(ChannelB, base.Add(4*time.Second), 156))

	if h.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", h.Len())
	}
	snap := h.Snapshot(time.Time{})
	want := []float64{150, 150, 150, 150, 156}
	for i, w := range want {
		if snap.ChannelB[i] != w {
			t.Errorf("ChannelB[%d] = %v, want %v", i, snap.ChannelB[i], w)
		}
	}
}

func TestAlignedHistoryAbsentReadingConsumesSlot(t *testing.T) {
	// A decode failure still advances the channel's cursor so the gap
	// stays aligned
	h := NewAlignedHistory(3600)
	base := time.Now()

	h.Append(sampleAt(ChannelA, base, 200))
	h.Append(RawSample{CaptureTime: base, Channel: ChannelB}) // Decode failure
	h.Append(sampleAt(ChannelA, base.Add(time.Second), 201))
	h.Append(sampleAt(ChannelB, base.Add(time.Second), 151))

	if h.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", h.Len())
	}
	snap := h.Snapshot(time.Time{})
	if !math.IsNaN(snap.ChannelB[0]) {
		t.Errorf("ChannelB[0] = %v, want NaN", snap.ChannelB[0])
	}
	if snap.ChannelB[1] != 151 {
		t.Errorf("ChannelB[1] = %v, want 151", snap.ChannelB[1])
	}
}

func TestAlignedHistorySlidingWindow(t *testing.T) {
	h := NewAlignedHistory(3)
	base := time.Now()

	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		h.Append(sampleAt(ChannelA, at, float64(200+i)))
		h.Append(sampleAt(ChannelB, at, float64(150+i)))
	}

	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}
	snap := h.Snapshot(time.Time{})
	if snap.ChannelA[0] != 202 || snap.ChannelA[2] != 204 {
		t.Errorf("window = %v, want [202 203 204]", snap.ChannelA)
	}
}

func TestAlignedHistorySnapshotRebasesOnSessionStart(t *testing.T) {
	h := NewAlignedHistory(3600)
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	h.Append(sampleAt(ChannelA, base, 200))
	h.Append(sampleAt(ChannelA, base.Add(10*time.Second), 210))

	// Roast started 5 seconds after the first sample; pre-roast history
	// re-bases to negative elapsed
	snap := h.Snapshot(base.Add(5 * time.Second))
	if snap.Elapsed[0] != -5 {
		t.Errorf("Elapsed[0] = %v, want -5", snap.Elapsed[0])
	}
	if snap.Elapsed[1] != 5 {
		t.Errorf("Elapsed[1] = %v, want 5", snap.Elapsed[1])
	}
}

func TestAlignedHistoryReset(t *testing.T) {
	h := NewAlignedHistory(3600)
	base := time.Now()
	h.Append(sampleAt(ChannelA, base, 200))
	h.Append(sampleAt(ChannelB, base, 150))

	h.Reset()
	if h.Len() != 0 {
		t.Fatalf("Len() after reset = %d, want 0", h.Len())
	}

	// Cursors must restart cleanly
	h.Append(sampleAt(ChannelA, base, 300))
	h.Append(sampleAt(ChannelB, base, 250))
	if h.Len() != 1 {
		t.Errorf("Len() after re-append = %d, want 1", h.Len())
	}
}
