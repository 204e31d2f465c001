package models

// Shape describes the dimensions of a volumetric scan as the ordered
// triple (depth, width, height). Depth is the slow axis (B-scan index),
// width and height span a single 2D slice.
type Shape struct {
	// Depth is the number of 2D slices along the scan axis
	Depth int

	// Width is the number of columns in each slice
	Width int

	// Height is the number of rows in each slice
	Height int
}

// Elements returns the total number of voxels described by the shape.
func (s Shape) Elements() int {
	return s.Depth * s.Width * s.Height
}

// ByteLen returns the byte length of a buffer holding the shape's
// voxels at the given element size.
func (s Shape) ByteLen(elemSize int) int {
	return s.Elements() * elemSize
}

// Valid reports whether all three dimensions are positive.
func (s Shape) Valid() bool {
	return s.Depth > 0 && s.Width > 0 && s.Height > 0
}

// Volume represents a 3D intensity volume decoded from a scan file.
type Volume struct {
	// Data is the voxel data as a flat array in slice-major order:
	// index = z*Width*Height + y*Width + x
	Data []float64

	// Dims holds the recovered (depth, width, height) of the volume
	Dims Shape

	// VoxelSize is the physical size of each voxel in mm, used when
	// serializing to a medical-imaging container
	VoxelSize struct {
		X, Y, Z float64
	}
}

// NewVolume allocates a zero-filled volume with the given shape.
func NewVolume(dims Shape) *Volume {
	return &Volume{
		Data: make([]float64, dims.Elements()),
		Dims: dims,
	}
}

// SliceSize returns the number of voxels in one 2D slice.
func (v *Volume) SliceSize() int {
	return v.Dims.Width * v.Dims.Height
}

// Slice returns the flat voxel data of the z-th 2D slice. The returned
// slice aliases the volume's backing array.
func (v *Volume) Slice(z int) []float64 {
	n := v.SliceSize()
	return v.Data[z*n : (z+1)*n]
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	out := &Volume{
		Data:      make([]float64, len(v.Data)),
		Dims:      v.Dims,
		VoxelSize: v.VoxelSize,
	}
	copy(out.Data, v.Data)
	return out
}

// QualityMetrics holds the distributional similarity metrics computed
// between a mapped volume's histogram and its matching target.
type QualityMetrics struct {
	// Correlation is the Pearson correlation between the two 256-bin
	// histogram vectors. Values range from -1 to 1, with 1 indicating
	// identical distribution shapes.
	Correlation float64

	// BhattacharyyaDistance measures the overlap between the two
	// normalized histograms. Zero means identical distributions;
	// larger values indicate less overlap.
	BhattacharyyaDistance float64

	// KLDivergence is the Kullback-Leibler divergence from the mapped
	// histogram to the target. Non-negative, zero for identical
	// distributions.
	KLDivergence float64
}
