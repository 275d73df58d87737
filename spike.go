package main

import (
	"log"
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// spikeWindow is how many accepted values the filter judges against
	spikeWindow = 10
	// spikeGrace is how many consecutive rejects it takes before a
	// sustained shift is treated as real rather than noise
	spikeGrace = 5
)

// SpikeFilter is a per-channel statistical outlier guard. State is
// explicit and owned by the processing tick; no lazy initialization.
type SpikeFilter struct {
	channel   Channel
	threshold float64
	metrics   *Metrics

	accepted []float64 // Last spikeWindow accepted values
	outliers []float64 // Consecutively rejected candidates
}

// NewSpikeFilter creates a spike filter for one channel
func NewSpikeFilter(channel Channel, threshold float64) *SpikeFilter {
	return &SpikeFilter{
		channel:   channel,
		threshold: threshold,
		accepted:  make([]float64, 0, spikeWindow),
	}
}

// SetThreshold updates the acceptance threshold; applies from the next
// candidate onward.
func (f *SpikeFilter) SetThreshold(threshold float64) {
	f.threshold = threshold
}

// SetMetrics attaches metric collectors; a nil metrics disables counting
func (f *SpikeFilter) SetMetrics(m *Metrics) {
	f.metrics = m
}

// Reset clears all filter state
func (f *SpikeFilter) Reset() {
	f.accepted = f.accepted[:0]
	f.outliers = nil
}

// Apply judges one candidate reading and returns the value to use in its
// place. Until the filter has seen spikeWindow accepted values it passes
// everything through. A rejected candidate is held back: the previous
// accepted value is returned instead, and the candidate is buffered.
// Once spikeGrace candidates in a row have been rejected, their average
// is accepted as a genuine shift and enters the window like any other
// accepted value.
//
// The acceptance band is |candidate - mean| <= threshold, an absolute
// band in degrees. The sample standard deviation of the recent window
// (floored at 1.0) is computed for visibility but does not scale the
// band; this matches the long-observed filter behavior in the field.
func (f *SpikeFilter) Apply(candidate float64) float64 {
	if len(f.accepted) < spikeWindow {
		// Insufficient history to judge
		f.outliers = nil
		f.accept(candidate)
		return candidate
	}

	mean := stat.Mean(f.accepted, nil)
	stddev := stat.StdDev(f.accepted, nil)
	if stddev < 1.0 {
		stddev = 1.0
	}

	if math.Abs(candidate-mean) <= f.threshold {
		f.outliers = nil
		f.accept(candidate)
		return candidate
	}

	f.outliers = append(f.outliers, candidate)
	if f.metrics != nil {
		f.metrics.RecordSpikeReject(f.channel)
	}
	if len(f.outliers) >= spikeGrace {
		// Sustained shift: accept the average of the buffered outliers
		shifted := stat.Mean(f.outliers, nil)
		if f.metrics != nil {
			f.metrics.RecordSpikeShift(f.channel)
		}
		if DebugMode {
			log.Printf("Spike filter: %s accepting sustained shift to %.2f after %d rejects (mean %.2f, stddev %.2f)",
				f.channel, shifted, len(f.outliers), mean, stddev)
		}
		f.outliers = nil
		f.accept(shifted)
		return shifted
	}

	if DebugMode {
		log.Printf("Spike filter: %s rejected %.2f (mean %.2f, stddev %.2f, threshold %.1f), holding %.2f",
			f.channel, candidate, mean, stddev, f.threshold, f.accepted[len(f.accepted)-1])
	}
	return f.accepted[len(f.accepted)-1]
}

// accept records a value into the bounded accepted-value window
func (f *SpikeFilter) accept(v float64) {
	f.accepted = append(f.accepted, v)
	if len(f.accepted) > spikeWindow {
		f.accepted = f.accepted[len(f.accepted)-spikeWindow:]
	}
}
