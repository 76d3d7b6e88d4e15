// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import "math"

// SampleStats summarizes a set of repeated probe measurements.
type SampleStats struct {
	Samples []float64
	Mean    float64
	Median  float64
	Min     float64
	Max     float64
	Range   float64
	StdDev  float64
}

// computeStats derives the summary for the given samples. At least one
// sample is required.
func computeStats(samples []float64) SampleStats {
	st := SampleStats{
		Samples: samples,
		Min:     samples[0],
		Max:     samples[0],
	}
	sum := 0.0
	for _, v := range samples {
		sum += v
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
	}
	st.Mean = sum / float64(len(samples))
	st.Range = st.Max - st.Min

	variance := 0.0
	for _, v := range samples {
		d := v - st.Mean
		variance += d * d
	}
	st.StdDev = math.Sqrt(variance / float64(len(samples)))

	sorted := append([]float64(nil), samples...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		st.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		st.Median = sorted[mid]
	}
	return st
}

// WithinTolerance reports whether the sample spread stays inside the
// given repeatability tolerance.
func (st SampleStats) WithinTolerance(tolerance float64) bool {
	return st.Range <= tolerance
}
