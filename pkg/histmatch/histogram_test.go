package histmatch

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gaussianHistogram builds a bell-shaped histogram centered on mean.
func gaussianHistogram(mean, sigma, mass float64) Histogram {
	var h Histogram
	for i := range h {
		d := (float64(i) - mean) / sigma
		h[i] = mass * math.Exp(-d*d/2)
	}
	return h
}

func TestHistogramOf8Bit(t *testing.T) {
	h := HistogramOf8Bit([]float64{0, 0, 128, 255, 300, -4})
	assert.Equal(t, 3.0, h[0], "negative values clamp to level 0")
	assert.Equal(t, 1.0, h[128])
	assert.Equal(t, 2.0, h[255], "values above 255 clamp to the top level")
	assert.Equal(t, 6.0, h.Total())
}

func TestCDF(t *testing.T) {
	var h Histogram
	h[0], h[100], h[255] = 1, 2, 1

	cdf := h.CDF()
	assert.InDelta(t, 0.25, cdf[0], 1e-12)
	assert.InDelta(t, 0.75, cdf[100], 1e-12)
	assert.InDelta(t, 1.0, cdf[255], 1e-12)

	// Monotonically non-decreasing, range [0,1].
	for i := 1; i < Bins; i++ {
		assert.GreaterOrEqual(t, cdf[i], cdf[i-1])
	}
}

func TestSmoothPreservesMass(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var h Histogram
	for i := range h {
		h[i] = rng.Float64() * 100
	}
	before := h.Total()

	h.Smooth(2.0)
	assert.InDelta(t, before, h.Total(), before*1e-9,
		"Gaussian smoothing must preserve total mass")
}

func TestSmoothSpreadsPeak(t *testing.T) {
	var h Histogram
	h[128] = 1000

	h.Smooth(2.0)
	assert.Less(t, h[128], 1000.0)
	assert.Greater(t, h[126], 0.0)
	assert.Greater(t, h[130], 0.0)
}

func TestClipOutliers(t *testing.T) {
	h := gaussianHistogram(128, 30, 100)
	// One pathological bin far above everything else.
	h[40] = 1e7

	h.ClipOutliers()
	assert.Less(t, h[40], 1e7, "outlier bin must be clipped")
	for _, c := range h {
		assert.GreaterOrEqual(t, c, 0.0)
	}
}

func TestApplyDensityFloor(t *testing.T) {
	var h Histogram
	h[10] = 5000
	h[200] = 5000
	floor := DensityFloorRatio * h.Total()

	h.ApplyDensityFloor()
	for i, c := range h {
		assert.GreaterOrEqual(t, c, floor, "bin %d below the density floor", i)
	}
	assert.Equal(t, 5000.0, h[10], "bins above the floor keep their mass")
}

func TestApplyDensityFloorEmptyHistogram(t *testing.T) {
	var h Histogram
	h.ApplyDensityFloor()
	require.Zero(t, h.Total())
}
