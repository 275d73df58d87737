package main

import "math"

// MovingAverage computes a 'valid' moving average over series with the
// given window: no edge padding, so the output has len(series)-window+1
// points and output index k corresponds to input index k+window-1
// (right-aligned). Returns ok=false when there is not enough data, in
// which case callers fall back to the raw series for this tick.
//
// NaN entries (a channel's leading holes) yield NaN for exactly the
// windows that contain them; the running sum tracks them separately so
// one hole does not poison the rest of the series.
func MovingAverage(series []float64, window int) ([]float64, bool) {
	if window < 1 || len(series) < window {
		return nil, false
	}

	out := make([]float64, len(series)-window+1)
	var sum float64
	nan := 0
	for i, v := range series {
		if math.IsNaN(v) {
			nan++
		} else {
			sum += v
		}
		if i >= window {
			if old := series[i-window]; math.IsNaN(old) {
				nan--
			} else {
				sum -= old
			}
		}
		if i >= window-1 {
			if nan > 0 {
				out[i-window+1] = math.NaN()
			} else {
				out[i-window+1] = sum / float64(window)
			}
		}
	}
	return out, true
}

// SmoothedTimes returns the timestamps matching a MovingAverage output:
// the right-aligned tail of the input timestamps.
func SmoothedTimes(times []float64, window int) []float64 {
	if window < 1 || len(times) < window {
		return nil
	}
	return times[window-1:]
}
