package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gonum.org/v1/gonum/floats"

	"foct2nifti/internal/models"
)

// peakVolume builds a synthetic normalized volume dominated by a single
// background mode at the given value, with a tail spanning up to 1.
func peakVolume(peak float64) *models.Volume {
	dims := models.Shape{Depth: 4, Width: 10, Height: 10}
	v := models.NewVolume(dims)
	for i := range v.Data {
		switch {
		case i%10 == 0:
			// sparse foreground ramp up to full intensity
			v.Data[i] = peak + (1-peak)*float64(i)/float64(len(v.Data)-1)
		case i%17 == 0:
			v.Data[i] = peak / 2
		default:
			v.Data[i] = peak
		}
	}
	v.Data[len(v.Data)-1] = 1.0
	v.Data[0] = 0.0
	return v
}

func TestEnhancePeakShift(t *testing.T) {
	// With the 8-bit histogram peak at normalized value 0.5 the
	// peak-shift output must span the full [0,1] range after clamping.
	out := Enhance(peakVolume(0.5), MethodPeakShift, DefaultEnhanceConfig())

	assert.Equal(t, 0.0, floats.Min(out.Data))
	assert.Equal(t, 1.0, floats.Max(out.Data))

	// The dominant mode itself lands on zero.
	zeros := 0
	for _, x := range out.Data {
		if x == 0 {
			zeros++
		}
	}
	assert.Greater(t, zeros, len(out.Data)/2)
}

func TestEnhancePeakShiftExtremePeakFallsBack(t *testing.T) {
	// A peak at 0 sits in the excluded extreme; the stretch fallback
	// must still produce a bounded [0,1] result.
	out := Enhance(peakVolume(0.0), MethodPeakShift, DefaultEnhanceConfig())
	assert.GreaterOrEqual(t, floats.Min(out.Data), 0.0)
	assert.LessOrEqual(t, floats.Max(out.Data), 1.0)
	assert.Greater(t, floats.Max(out.Data), floats.Min(out.Data))
}

func TestEnhanceStretch(t *testing.T) {
	dims := models.Shape{Depth: 1, Width: 10, Height: 10}
	v := models.NewVolume(dims)
	for i := range v.Data {
		v.Data[i] = float64(i) / float64(len(v.Data)-1)
	}

	out := Enhance(v, MethodStretch, DefaultEnhanceConfig())
	assert.Equal(t, 0.0, floats.Min(out.Data))
	assert.Equal(t, 1.0, floats.Max(out.Data))
	// Interior ordering is preserved.
	for i := 1; i < len(out.Data); i++ {
		assert.GreaterOrEqual(t, out.Data[i], out.Data[i-1])
	}
}

func TestEnhanceDegenerateUnchanged(t *testing.T) {
	dims := models.Shape{Depth: 2, Width: 3, Height: 3}
	v := models.NewVolume(dims) // all zeros after a degenerate normalize

	for _, method := range []Method{MethodPeakShift, MethodStretch, MethodBlended} {
		out := Enhance(v, method, DefaultEnhanceConfig())
		assert.Equal(t, v.Data, out.Data, "method %s", method)
	}
}

func TestEnhanceBlendedBounded(t *testing.T) {
	out := Enhance(peakVolume(0.4), MethodBlended, DefaultEnhanceConfig())
	assert.GreaterOrEqual(t, floats.Min(out.Data), 0.0)
	assert.LessOrEqual(t, floats.Max(out.Data), 1.0)
}

func TestEnhanceDeterministic(t *testing.T) {
	a := Enhance(peakVolume(0.5), MethodBlended, DefaultEnhanceConfig())
	b := Enhance(peakVolume(0.5), MethodBlended, DefaultEnhanceConfig())
	assert.Equal(t, a.Data, b.Data)
}
