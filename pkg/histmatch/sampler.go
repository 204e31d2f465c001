package histmatch

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrTargetUnavailable signals that a reference corpus is missing or
// yields no usable samples. Callers skip that matching target and
// continue; this is never a fatal pipeline error.
var ErrTargetUnavailable = errors.New("reference corpus unavailable or unusable")

// SamplerConfig holds the tunable parameters of the target histogram
// sampler.
type SamplerConfig struct {
	// SampleCount is the number of corpus images drawn, without
	// replacement. A corpus smaller than SampleCount is used in full.
	SampleCount int

	// Seed drives the sample selection. Identical seed, corpus and
	// SampleCount produce an identical sample set and a bit-identical
	// aggregate histogram.
	Seed int64

	// MinStdDev rejects near-uniform images: any image whose 8-bit
	// pixel standard deviation falls below this threshold carries no
	// useful distributional signal and is skipped.
	MinStdDev float64

	// SmoothSigma is the Gaussian sigma of the mass-preserving
	// smoothing applied to the aggregate histogram.
	SmoothSigma float64

	// Workers bounds the concurrent image decoding. Zero means all
	// CPUs.
	Workers int
}

// DefaultSamplerConfig returns the sampler parameters used in
// production.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		SampleCount: 100,
		Seed:        42,
		MinStdDev:   2.0,
		SmoothSigma: 2.0,
	}
}

// SampleTarget builds the reference intensity distribution from a
// corpus of 2D images under dir. It selects SampleCount images with a
// seeded permutation, decodes them concurrently, aggregates all
// retained pixels into one histogram, and post-processes it with
// outlier clipping, mass-preserving Gaussian smoothing and the density
// floor.
//
// Images that fail to decode or are near-uniform are skipped, not
// fatal. A missing directory or zero usable images returns
// ErrTargetUnavailable.
func SampleTarget(dir string, cfg SamplerConfig) (*Histogram, error) {
	files, err := listImages(dir)
	if err != nil || len(files) == 0 {
		return nil, ErrTargetUnavailable
	}

	// The selection itself stays single-threaded and seeded so the
	// sample set is reproducible; only the decode-and-accumulate step
	// fans out.
	rng := rand.New(rand.NewSource(cfg.Seed))
	perm := rng.Perm(len(files))
	count := cfg.SampleCount
	if count <= 0 || count > len(files) {
		count = len(files)
	}
	selected := make([]string, count)
	for i := 0; i < count; i++ {
		selected[i] = files[perm[i]]
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	// Histogram accumulation is commutative, so merge order across
	// images does not affect the result.
	var mu sync.Mutex
	var agg Histogram
	var g errgroup.Group
	g.SetLimit(workers)
	for _, path := range selected {
		path := path
		g.Go(func() error {
			h, ok := imageHistogram(path, cfg.MinStdDev)
			if !ok {
				return nil
			}
			mu.Lock()
			for i, c := range h {
				agg[i] += c
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if agg.Total() <= 0 {
		return nil, ErrTargetUnavailable
	}

	agg.ClipOutliers()
	agg.Smooth(cfg.SmoothSigma)
	agg.ApplyDensityFloor()
	return &agg, nil
}

// listImages returns the decodable image files under dir, sorted by
// name so the seeded permutation is stable across runs.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading corpus directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// imageHistogram decodes one corpus image to a single-channel 8-bit
// histogram. It reports ok=false for undecodable or near-uniform
// images.
func imageHistogram(path string, minStdDev float64) (Histogram, bool) {
	var h Histogram

	f, err := os.Open(path)
	if err != nil {
		return h, false
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return h, false
	}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// Rec. 601 luminance over the 16-bit channels, scaled to
			// 8-bit levels.
			lum := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257
			h[level8(lum)]++
		}
	}

	if histStdDev(&h) < minStdDev {
		return h, false
	}
	return h, true
}

// histStdDev computes the pixel standard deviation directly from the
// histogram moments, avoiding a second pass over the pixels.
func histStdDev(h *Histogram) float64 {
	total := h.Total()
	if total <= 0 {
		return 0
	}
	mean := 0.0
	for i, c := range h {
		mean += float64(i) * c
	}
	mean /= total

	variance := 0.0
	for i, c := range h {
		d := float64(i) - mean
		variance += d * d * c
	}
	return math.Sqrt(variance / total)
}
