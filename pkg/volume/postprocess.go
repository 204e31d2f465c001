package volume

import (
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"foct2nifti/internal/models"
)

// PostConfig controls the post-processing applied to a mapped volume.
// Post-processing operates on the 8-bit quantized domain: voxel values
// are integral gray levels in [0,255] stored as float64.
type PostConfig struct {
	// MedianFilter enables the per-slice 3x3 median filter, which
	// removes isolated speckle without blurring edges.
	MedianFilter bool

	// InterSliceBlend enables the 1-2-1 blend along the depth axis for
	// axial continuity. First and last slices are left unfiltered.
	InterSliceBlend bool

	// Workers bounds the per-slice fan-out. Zero means all CPUs.
	Workers int
}

// PostProcess despeckles each slice and optionally blends across the
// depth axis, returning a new volume. Slices are filtered in parallel;
// the inter-slice blend is a genuine barrier and only starts once every
// slice's median-filtered result exists, because each blended slice
// reads its two neighbors' filtered values.
func PostProcess(v *models.Volume, cfg PostConfig) *models.Volume {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	filtered := v.Clone()
	if cfg.MedianFilter {
		var g errgroup.Group
		g.SetLimit(workers)
		for z := 0; z < v.Dims.Depth; z++ {
			z := z
			g.Go(func() error {
				medianFilter3x3(v.Slice(z), filtered.Slice(z), v.Dims.Width, v.Dims.Height)
				return nil
			})
		}
		// Workers never fail; Wait is the synchronization barrier.
		_ = g.Wait()
	}

	if !cfg.InterSliceBlend || v.Dims.Depth < 3 {
		return filtered
	}

	out := filtered.Clone()
	n := filtered.SliceSize()
	for z := 1; z < filtered.Dims.Depth-1; z++ {
		prev := filtered.Slice(z - 1)
		cur := filtered.Slice(z)
		next := filtered.Slice(z + 1)
		dst := out.Data[z*n : (z+1)*n]
		for i := range dst {
			dst[i] = math.Round((prev[i] + 2*cur[i] + next[i]) / 4)
		}
	}
	return out
}

// medianFilter3x3 writes the 3x3 median filter of src into dst. Border
// pixels are copied unchanged.
func medianFilter3x3(src, dst []float64, width, height int) {
	copy(dst, src)
	if width < 3 || height < 3 {
		return
	}

	var window [9]float64
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					window[k] = src[(y+dy)*width+x+dx]
					k++
				}
			}
			dst[y*width+x] = median9(window)
		}
	}
}

// median9 returns the median of a 3x3 window.
func median9(w [9]float64) float64 {
	sort.Float64s(w[:])
	return w[4]
}

// Quantize8Bit maps a [0,1] volume to integral 8-bit gray levels stored
// as float64, the domain post-processing operates on.
func Quantize8Bit(v *models.Volume) *models.Volume {
	out := models.NewVolume(v.Dims)
	out.VoxelSize = v.VoxelSize
	for i, x := range v.Data {
		out.Data[i] = float64(quantize8(x))
	}
	return out
}

// Dequantize8Bit maps integral 8-bit gray levels back to [0,1].
func Dequantize8Bit(v *models.Volume) *models.Volume {
	out := models.NewVolume(v.Dims)
	out.VoxelSize = v.VoxelSize
	for i, x := range v.Data {
		out.Data[i] = clamp01(x / 255)
	}
	return out
}
