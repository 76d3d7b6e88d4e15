// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats(t *testing.T) {
	st := computeStats([]float64{10.000, 10.005, 9.998, 10.002, 10.001})

	assert.InDelta(t, 10.0012, st.Mean, 1e-9)
	assert.InDelta(t, 10.001, st.Median, 1e-9)
	assert.InDelta(t, 9.998, st.Min, 1e-9)
	assert.InDelta(t, 10.005, st.Max, 1e-9)
	assert.InDelta(t, 0.007, st.Range, 1e-9)
	assert.Greater(t, st.StdDev, 0.0)

	assert.True(t, st.WithinTolerance(0.020))
	assert.False(t, st.WithinTolerance(0.005))
}

func TestComputeStatsSingleSample(t *testing.T) {
	st := computeStats([]float64{1.5})
	assert.Equal(t, 1.5, st.Mean)
	assert.Equal(t, 1.5, st.Median)
	assert.Equal(t, 0.0, st.Range)
	assert.Equal(t, 0.0, st.StdDev)
}

func TestComputeStatsEvenCountMedian(t *testing.T) {
	st := computeStats([]float64{2, 4, 1, 3})
	assert.InDelta(t, 2.5, st.Median, 1e-12)
}
