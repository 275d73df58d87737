package main

// RateOfRise converts a temperature series into degrees per minute using
// a look-back window in seconds. For each point the reference sample is
// found by scanning backward from the previous point for the first one
// at least windowSec older; if none is old enough, the series start is
// used. ror[0] is 0 by definition, as is any point with no time gap to
// its reference.
//
// Recomputed over the full visible history each tick; O(N·scan) is fine
// under the bounded history capacity.
func RateOfRise(elapsed, temps []float64, windowSec float64) []float64 {
	n := len(temps)
	if len(elapsed) < n {
		n = len(elapsed)
	}
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		j := 0
		for k := i - 1; k >= 0; k-- {
			if elapsed[i]-elapsed[k] >= windowSec {
				j = k
				break
			}
		}
		dt := elapsed[i] - elapsed[j]
		if dt > 0 {
			out[i] = (temps[i] - temps[j]) / dt * 60
		}
	}
	return out
}
