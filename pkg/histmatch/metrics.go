package histmatch

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"foct2nifti/internal/models"
)

// machineEpsilon floors normalized histogram bins before the log-based
// metrics, avoiding log(0) and division by zero.
var machineEpsilon = math.Nextafter(1, 2) - 1

// Evaluate computes the distributional similarity metrics between two
// histograms: Pearson correlation over the raw 256-bin vectors,
// Bhattacharyya distance and KL divergence over the normalized
// histograms. Both inputs must be non-negative with at least one
// non-zero bin; the sampler's density floor guarantees this for
// matching targets.
func Evaluate(h1, h2 *Histogram) models.QualityMetrics {
	p := flooredNormalized(h1)
	q := flooredNormalized(h2)

	bc := 0.0
	kl := 0.0
	for k := 0; k < Bins; k++ {
		bc += math.Sqrt(p[k] * q[k])
		kl += p[k] * math.Log(p[k]/q[k])
	}

	return models.QualityMetrics{
		Correlation:           stat.Correlation(h1[:], h2[:], nil),
		BhattacharyyaDistance: -math.Log(bc),
		KLDivergence:          kl,
	}
}

// flooredNormalized normalizes a histogram and floors every bin at
// machine epsilon.
func flooredNormalized(h *Histogram) [Bins]float64 {
	out := h.Normalized()
	for i, p := range out {
		if p < machineEpsilon {
			out[i] = machineEpsilon
		}
	}
	return out
}
