package main

import (
	"math"
	"time"
)

// channelSlot is one channel's cell in an aligned row. Taken means the
// channel's reading for this row arrived (possibly undecodable); Valid
// means a decoded value is present.
type channelSlot struct {
	Value float64
	Valid bool
	Taken bool
}

// historyRow is one aligned entry: a shared timestamp plus one slot per
// channel. A slot stays unset until that channel's own reading for the
// row arrives (or never, for a gap); forward-fill happens at snapshot
// time so a gap renders as a flat segment without rewriting rows.
type historyRow struct {
	Time  time.Time
	ISO   string
	Slots [2]channelSlot
}

// AlignedHistory keeps both channel series length-synchronized in a
// bounded sliding window. It is mutated only by the processing tick.
//
// Alignment pairs a sample with the newest row when that row's slot for
// the sample's channel is still open; otherwise the sample opens a new
// row stamped with its own capture time. Interleaved A/B notifications
// therefore pair up into single rows, while a channel that goes silent
// leaves its slots open in the rows it missed. A returning reading never
// reaches further back than the newest row, so a notification gap shows
// up as holes at the time it happened instead of time-shifting the
// channel's series.
type AlignedHistory struct {
	capacity int
	rows     []historyRow
}

// HistorySnapshot is a read-only copy of the aligned history with gaps
// forward-filled and elapsed time recomputed against the given base.
// Entries before a channel's first reading are NaN.
type HistorySnapshot struct {
	Times    []time.Time
	ISO      []string
	Elapsed  []float64
	ChannelA []float64
	ChannelB []float64
}

// NewAlignedHistory creates an aligned history with the given row capacity
func NewAlignedHistory(capacity int) *AlignedHistory {
	return &AlignedHistory{
		capacity: capacity,
		rows:     make([]historyRow, 0, capacity),
	}
}

// Append folds one raw sample into the history. Samples must arrive in
// capture order. A sample with an absent temperature still takes the
// channel's slot so the gap stays visible in the row structure.
func (h *AlignedHistory) Append(s RawSample) {
	ch := 0
	if s.Channel == ChannelB {
		ch = 1
	}

	if n := len(h.rows); n > 0 && !h.rows[n-1].Slots[ch].Taken {
		// The newest row is still waiting on this channel: pair up
		h.rows[n-1].Slots[ch] = newSlot(s)
		return
	}

	// Open a new row at the sample's own capture time
	row := historyRow{
		Time: s.CaptureTime,
		ISO:  s.CaptureTime.Local().Format(time.RFC3339),
	}
	row.Slots[ch] = newSlot(s)
	h.rows = append(h.rows, row)

	// Evict oldest rows beyond capacity (sliding window)
	if len(h.rows) > h.capacity {
		h.rows = h.rows[len(h.rows)-h.capacity:]
	}
}

// newSlot builds a taken slot from one sample
func newSlot(s RawSample) channelSlot {
	slot := channelSlot{Taken: true}
	if s.Temperature != nil {
		slot.Value = *s.Temperature
		slot.Valid = true
	}
	return slot
}

// Len returns the number of aligned rows
func (h *AlignedHistory) Len() int {
	return len(h.rows)
}

// Reset discards all rows
func (h *AlignedHistory) Reset() {
	h.rows = h.rows[:0]
}

// Snapshot copies the history with gaps forward-filled. Elapsed time is
// measured from sessionStart when non-zero, otherwise from the first
// sample; history recorded before a roast starts therefore re-bases when
// the roast begins, which is intentional (the display recomputes elapsed
// time from the full history every tick anyway).
func (h *AlignedHistory) Snapshot(sessionStart time.Time) HistorySnapshot {
	n := len(h.rows)
	snap := HistorySnapshot{
		Times:    make([]time.Time, n),
		ISO:      make([]string, n),
		Elapsed:  make([]float64, n),
		ChannelA: make([]float64, n),
		ChannelB: make([]float64, n),
	}
	if n == 0 {
		return snap
	}

	base := sessionStart
	if base.IsZero() {
		base = h.rows[0].Time
	}

	lastA, lastB := math.NaN(), math.NaN()
	for i, row := range h.rows {
		snap.Times[i] = row.Time
		snap.ISO[i] = row.ISO
		snap.Elapsed[i] = row.Time.Sub(base).Seconds()
		if row.Slots[0].Valid {
			lastA = row.Slots[0].Value
		}
		if row.Slots[1].Valid {
			lastB = row.Slots[1].Value
		}
		snap.ChannelA[i] = lastA
		snap.ChannelB[i] = lastB
	}
	return snap
}
