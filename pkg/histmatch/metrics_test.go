package histmatch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateIdenticalHistograms(t *testing.T) {
	h := gaussianHistogram(128, 30, 1000)
	h.ApplyDensityFloor()

	m := Evaluate(&h, &h)
	assert.InDelta(t, 1.0, m.Correlation, 1e-9)
	assert.InDelta(t, 0.0, m.BhattacharyyaDistance, 1e-9)
	assert.InDelta(t, 0.0, m.KLDivergence, 1e-9)
}

func TestEvaluateDisjointModes(t *testing.T) {
	a := gaussianHistogram(60, 10, 1000)
	b := gaussianHistogram(200, 10, 1000)
	a.ApplyDensityFloor()
	b.ApplyDensityFloor()

	m := Evaluate(&a, &b)
	assert.Less(t, m.Correlation, 0.5)
	assert.Greater(t, m.BhattacharyyaDistance, 0.0)
	assert.Greater(t, m.KLDivergence, 0.0)
}

func TestEvaluateWellDefinedWithFlooredHistograms(t *testing.T) {
	// Any two histograms satisfying the density floor must produce
	// finite metrics: the floor rules out log(0) and division by zero.
	for seed := int64(0); seed < 10; seed++ {
		a := randomHistogram(seed, 50)
		b := randomHistogram(seed+100, 50)
		a.ApplyDensityFloor()
		b.ApplyDensityFloor()

		m := Evaluate(&a, &b)
		require.False(t, math.IsNaN(m.Correlation) || math.IsInf(m.Correlation, 0))
		require.False(t, math.IsNaN(m.BhattacharyyaDistance) || math.IsInf(m.BhattacharyyaDistance, 0))
		require.False(t, math.IsNaN(m.KLDivergence) || math.IsInf(m.KLDivergence, 0))
		assert.GreaterOrEqual(t, m.KLDivergence, 0.0)
		assert.GreaterOrEqual(t, m.BhattacharyyaDistance, -1e-12)
	}
}
