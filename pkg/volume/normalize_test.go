package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foct2nifti/internal/models"
)

// makeVolume builds a small volume with the given flat values.
func makeVolume(t *testing.T, dims models.Shape, values []float64) *models.Volume {
	t.Helper()
	require.Len(t, values, dims.Elements())
	v := models.NewVolume(dims)
	copy(v.Data, values)
	return v
}

func TestNormalize(t *testing.T) {
	v := makeVolume(t, models.Shape{Depth: 1, Width: 4, Height: 1},
		[]float64{10, 20, 30, 40})

	n, norm := Normalize(v)
	assert.Equal(t, 10.0, norm.Min)
	assert.Equal(t, 40.0, norm.Max)
	assert.False(t, norm.Degenerate())
	assert.InDeltaSlice(t, []float64{0, 1.0 / 3, 2.0 / 3, 1}, n.Data, 1e-12)

	// Input must not be modified.
	assert.Equal(t, []float64{10, 20, 30, 40}, v.Data)
}

func TestNormalizeDegenerate(t *testing.T) {
	// A volume with all elements equal to 7.0 normalizes to the
	// all-zero array: constant volumes carry no contrast to preserve.
	v := makeVolume(t, models.Shape{Depth: 2, Width: 2, Height: 2},
		[]float64{7, 7, 7, 7, 7, 7, 7, 7})

	n, norm := Normalize(v)
	assert.True(t, norm.Degenerate())
	for _, x := range n.Data {
		assert.Zero(t, x)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	values := []float64{-5, 0, 2.5, 10}
	v := makeVolume(t, models.Shape{Depth: 1, Width: 4, Height: 1}, values)

	n, norm := Normalize(v)
	norm.Restore(n)
	assert.InDeltaSlice(t, values, n.Data, 1e-12)
}

func TestRestoreDegenerateNoop(t *testing.T) {
	v := makeVolume(t, models.Shape{Depth: 1, Width: 2, Height: 1}, []float64{0.25, 0.75})
	norm := Normalization{Min: 3, Max: 3}
	norm.Restore(v)
	assert.Equal(t, []float64{0.25, 0.75}, v.Data)
}
