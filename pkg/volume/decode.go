// Package volume implements the numerical core of the conversion
// pipeline: decoding raw sample buffers into 3D volumes, value-range
// normalization, adaptive contrast enhancement, and per-slice
// post-processing of mapped volumes.
package volume

import (
	"encoding/binary"
	"fmt"
	"math"

	"foct2nifti/internal/models"
)

// Decode converts a raw buffer of little-endian 32-bit float samples
// into a volume with the given shape. The buffer must contain exactly
// the number of bytes the shape describes; the dimension prober
// guarantees this for recovered shapes.
func Decode(buf []byte, dims models.Shape) (*models.Volume, error) {
	want := dims.ByteLen(4)
	if len(buf) != want {
		return nil, fmt.Errorf("buffer length %d does not match shape %dx%dx%d (%d bytes)",
			len(buf), dims.Depth, dims.Width, dims.Height, want)
	}

	v := models.NewVolume(dims)
	for i := range v.Data {
		bits := binary.LittleEndian.Uint32(buf[i*4:])
		v.Data[i] = float64(math.Float32frombits(bits))
	}
	return v, nil
}

// Sanitize replaces every NaN and infinite value with zero, in place,
// and returns the number of substitutions. Decoded instrument files
// occasionally carry garbage samples; substituting zero keeps the
// volume usable, but the count must be surfaced so downstream consumers
// know the data was altered.
func Sanitize(v *models.Volume) int {
	replaced := 0
	for i, x := range v.Data {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			v.Data[i] = 0
			replaced++
		}
	}
	return replaced
}

// ReverseDepth reverses the slice order of the volume in place. FOCT
// exports store B-scans back-to-front relative to the anatomical
// convention, so the pipeline canonicalizes orientation once after
// decoding.
func ReverseDepth(v *models.Volume) {
	n := v.SliceSize()
	tmp := make([]float64, n)
	for lo, hi := 0, v.Dims.Depth-1; lo < hi; lo, hi = lo+1, hi-1 {
		a := v.Slice(lo)
		b := v.Slice(hi)
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}
