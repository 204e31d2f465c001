// Package histmatch implements histogram specification for FOCT
// volumes: building a robust reference intensity distribution from a
// corpus of 2D images, constructing a smooth monotonic 256-level
// mapping table via CDF alignment, and scoring how well a mapped
// volume's distribution fits its target.
package histmatch

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Bins is the number of gray levels all histogram operations work on.
const Bins = 256

// DensityFloorRatio is the minimum share of total mass every bin of a
// processed target histogram keeps. A floored histogram can never
// produce a zero probability, which keeps later CDF and KL computations
// well defined.
const DensityFloorRatio = 1e-4

// Histogram maps 256 ordered intensity bins to non-negative counts.
// Counts are float64 because smoothing and flooring produce fractional
// mass.
type Histogram [Bins]float64

// HistogramOf8Bit builds a histogram from voxel values that are already
// integral 8-bit gray levels stored as float64. Out-of-range values are
// clamped into [0,255].
func HistogramOf8Bit(data []float64) Histogram {
	var h Histogram
	for _, x := range data {
		h[level8(x)]++
	}
	return h
}

// HistogramOfNormalized builds a histogram from [0,1] values by 8-bit
// quantization.
func HistogramOfNormalized(data []float64) Histogram {
	var h Histogram
	for _, x := range data {
		h[level8(x*255)]++
	}
	return h
}

// Total returns the histogram's total mass.
func (h *Histogram) Total() float64 {
	return floats.Sum(h[:])
}

// Normalized returns the histogram divided by its total mass. A zero
// histogram normalizes to all zeros.
func (h *Histogram) Normalized() [Bins]float64 {
	var out [Bins]float64
	total := h.Total()
	if total <= 0 {
		return out
	}
	for i, c := range h {
		out[i] = c / total
	}
	return out
}

// CDF returns the cumulative distribution of the histogram: prefix sums
// divided by total mass, monotonically non-decreasing in [0,1].
func (h *Histogram) CDF() [Bins]float64 {
	var cdf [Bins]float64
	total := h.Total()
	if total <= 0 {
		return cdf
	}
	run := 0.0
	for i, c := range h {
		run += c
		cdf[i] = run / total
	}
	return cdf
}

// ClipOutliers clamps every bin into [max(0, median-3s), median+3s],
// where median and s are computed over the non-zero bins only. Corpus
// aggregation can leave a handful of bins with pathological mass; the
// clip keeps them from dominating the CDF.
func (h *Histogram) ClipOutliers() {
	nonzero := make([]float64, 0, Bins)
	for _, c := range h {
		if c > 0 {
			nonzero = append(nonzero, c)
		}
	}
	if len(nonzero) < 2 {
		return
	}

	sort.Float64s(nonzero)
	med := stat.Quantile(0.5, stat.Empirical, nonzero, nil)
	sigma := stat.StdDev(nonzero, nil)

	hi := med + 3*sigma
	lo := med - 3*sigma
	if lo < 0 {
		lo = 0
	}
	for i, c := range h {
		if c == 0 {
			continue
		}
		if c > hi {
			h[i] = hi
		} else if c < lo {
			h[i] = lo
		}
	}
}

// Smooth convolves the histogram with a unit-sum Gaussian kernel of the
// given sigma, truncated at radius ceil(3*sigma), then renormalizes so
// the total mass equals the pre-smoothing mass. A non-positive sigma is
// a no-op.
func (h *Histogram) Smooth(sigma float64) {
	if sigma <= 0 {
		return
	}
	before := h.Total()
	if before <= 0 {
		return
	}

	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2

	var out Histogram
	for i := range h {
		acc := 0.0
		for k, w := range kernel {
			j := i + k - radius
			if j < 0 || j >= Bins {
				continue
			}
			acc += w * h[j]
		}
		out[i] = acc
	}

	// Boundary truncation loses mass; restore the original total so
	// smoothing is mass preserving.
	after := out.Total()
	if after > 0 {
		scale := before / after
		for i := range out {
			out[i] *= scale
		}
	}
	*h = out
}

// ApplyDensityFloor clamps every bin to at least
// DensityFloorRatio*totalMass, guaranteeing no bin is ever exactly
// zero.
func (h *Histogram) ApplyDensityFloor() {
	total := h.Total()
	if total <= 0 {
		return
	}
	floor := DensityFloorRatio * total
	for i, c := range h {
		if c < floor {
			h[i] = floor
		}
	}
}

// gaussianKernel builds a unit-sum Gaussian kernel of width
// 2*ceil(3*sigma)+1.
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
	}
	sum := floats.Sum(kernel)
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// level8 clamps and rounds a float gray value to an 8-bit level.
func level8(x float64) int {
	if x <= 0 {
		return 0
	}
	if x >= 255 {
		return 255
	}
	return int(math.Round(x))
}
