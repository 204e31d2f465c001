package volume

import (
	"gonum.org/v1/gonum/floats"

	"foct2nifti/internal/models"
)

// Normalization records the global value range used to map a volume
// into [0,1], so the transform can be inverted after enhancement to
// restore the original numeric scale.
type Normalization struct {
	Min float64
	Max float64
}

// Degenerate reports whether the source volume was constant. A constant
// volume carries no contrast information, so normalization emits an
// all-zero volume rather than failing; callers record this condition
// but continue.
func (n Normalization) Degenerate() bool {
	return n.Max <= n.Min
}

// Normalize maps the volume's values into [0,1] and returns the new
// volume together with the (min, max) range used. The input volume is
// not modified. For a constant volume the result is all zeros.
func Normalize(v *models.Volume) (*models.Volume, Normalization) {
	norm := Normalization{
		Min: floats.Min(v.Data),
		Max: floats.Max(v.Data),
	}

	out := models.NewVolume(v.Dims)
	out.VoxelSize = v.VoxelSize
	if norm.Degenerate() {
		return out, norm
	}

	scale := 1 / (norm.Max - norm.Min)
	for i, x := range v.Data {
		out.Data[i] = (x - norm.Min) * scale
	}
	return out, norm
}

// Restore applies the inverse transform x*(max-min)+min in place,
// mapping a [0,1] volume back to the original numeric scale. Output
// volumes must stay metrically comparable across files, so every
// non-8-bit pipeline restores its scale before hand-off. Restoring a
// degenerate normalization leaves the volume unchanged.
func (n Normalization) Restore(v *models.Volume) {
	if n.Degenerate() {
		return
	}
	span := n.Max - n.Min
	for i, x := range v.Data {
		v.Data[i] = x*span + n.Min
	}
}
