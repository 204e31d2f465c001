package histmatch

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"foct2nifti/internal/models"
)

// MatchConfig holds the tunable parameters of the specification
// matcher. It is passed explicitly so table construction stays a pure
// function of histogram plus parameters.
type MatchConfig struct {
	// TargetSmoothSigma is the Gaussian sigma applied to the target
	// histogram before CDF alignment. A raw target histogram is
	// typically noisier than the aggregated corpus sample, so it gets
	// the same adaptive smoothing as the sampler applies.
	TargetSmoothSigma float64

	// JumpThreshold is the largest level difference tolerated between
	// consecutive table entries before damping kicks in. Larger jumps
	// produce banding artifacts in the mapped slices.
	JumpThreshold int

	// JumpAlpha blends a damped entry as alpha*new + (1-alpha)*prev.
	JumpAlpha float64

	// SmoothWindow is the centered moving-average window applied over
	// the interior of the table after monotonicity enforcement. Zero
	// disables the pass.
	SmoothWindow int

	// RestoreMonotonicity re-clamps the table after the final smoothing
	// pass. The smoothing can reintroduce tiny non-monotonic steps at
	// the window boundaries; by default the table is left as smoothed
	// and callers relying on strict monotonicity enable this.
	RestoreMonotonicity bool

	// Workers bounds the per-slice fan-out of MatchVolume. Zero means
	// all CPUs.
	Workers int
}

// DefaultMatchConfig returns the matcher parameters used in production.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		TargetSmoothSigma: 2.0,
		JumpThreshold:     10,
		JumpAlpha:         0.7,
		SmoothWindow:      5,
	}
}

// MappingTable is a 256-entry intensity lookup table. After
// construction (before the final smoothing pass) it is weakly
// non-decreasing; a non-monotonic table would invert local contrast.
type MappingTable [Bins]uint8

// Monotonic reports whether the table is weakly non-decreasing.
func (t *MappingTable) Monotonic() bool {
	for i := 1; i < Bins; i++ {
		if t[i] < t[i-1] {
			return false
		}
	}
	return true
}

// BuildTable constructs the mapping table that remaps the source
// histogram's intensity distribution onto the target's, via CDF
// alignment followed by jump damping, monotonicity enforcement and a
// final moving-average smoothing. The construction is deterministic:
// identical histograms and parameters yield a bit-identical table.
func BuildTable(src, target Histogram, cfg MatchConfig) MappingTable {
	target.Smooth(cfg.TargetSmoothSigma)
	scdf := src.CDF()
	tcdf := target.CDF()

	// CDF alignment: each source level maps to the target level whose
	// cumulative value is nearest.
	var table [Bins]int
	for i := 0; i < Bins; i++ {
		best := 0
		bestDiff := math.Inf(1)
		for j := 0; j < Bins; j++ {
			diff := math.Abs(tcdf[j] - scdf[i])
			if diff < bestDiff {
				bestDiff = diff
				best = j
			}
		}
		table[i] = best

		// Local jump damping, applied while building left to right.
		if i > 0 && abs(table[i]-table[i-1]) > cfg.JumpThreshold {
			damped := cfg.JumpAlpha*float64(best) + (1-cfg.JumpAlpha)*float64(table[i-1])
			table[i] = clampLevel(int(math.Round(damped)))
		}
	}

	// Monotonicity enforcement: a non-monotonic LUT reverses local
	// intensity ordering and destroys structural detail.
	for i := 1; i < Bins; i++ {
		if table[i] < table[i-1] {
			table[i] = table[i-1]
		}
	}

	// Final smoothing over the interior, recomputed from the enforced
	// table. This pass may reintroduce tiny non-monotonic steps at the
	// window boundaries; see MatchConfig.RestoreMonotonicity.
	if cfg.SmoothWindow > 1 {
		radius := cfg.SmoothWindow / 2
		snapshot := table
		for i := radius; i < Bins-radius; i++ {
			sum := 0
			for k := -radius; k <= radius; k++ {
				sum += snapshot[i+k]
			}
			table[i] = clampLevel(int(math.Round(float64(sum) / float64(2*radius+1))))
		}
		if cfg.RestoreMonotonicity {
			for i := 1; i < Bins; i++ {
				if table[i] < table[i-1] {
					table[i] = table[i-1]
				}
			}
		}
	}

	var out MappingTable
	for i, v := range table {
		out[i] = uint8(v)
	}
	return out
}

// Apply remaps a flat slice of 8-bit gray levels (stored as float64)
// through the table, writing into dst. src and dst may alias.
func (t *MappingTable) Apply(src, dst []float64) {
	for i, x := range src {
		dst[i] = float64(t[level8(x)])
	}
}

// MatchSlice remaps one 2D slice of 8-bit gray levels onto the target
// distribution and returns the mapped slice together with the table
// used, for audit.
func MatchSlice(slice []float64, target Histogram, cfg MatchConfig) ([]float64, MappingTable) {
	src := HistogramOf8Bit(slice)
	table := BuildTable(src, target, cfg)
	out := make([]float64, len(slice))
	table.Apply(slice, out)
	return out, table
}

// MatchVolume remaps every slice of an 8-bit quantized volume onto the
// target distribution. Each slice gets its own table built from its own
// histogram; slices are independent and processed in parallel. The
// returned table is the middle slice's, kept as the audit table for the
// run.
func MatchVolume(v *models.Volume, target Histogram, cfg MatchConfig) (*models.Volume, MappingTable) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := models.NewVolume(v.Dims)
	out.VoxelSize = v.VoxelSize
	tables := make([]MappingTable, v.Dims.Depth)

	var g errgroup.Group
	g.SetLimit(workers)
	for z := 0; z < v.Dims.Depth; z++ {
		z := z
		g.Go(func() error {
			src := HistogramOf8Bit(v.Slice(z))
			tables[z] = BuildTable(src, target, cfg)
			tables[z].Apply(v.Slice(z), out.Slice(z))
			return nil
		})
	}
	_ = g.Wait()

	return out, tables[v.Dims.Depth/2]
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func clampLevel(x int) int {
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return x
}
