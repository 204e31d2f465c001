// Package pipeline drives the per-file conversion: dimension recovery,
// decoding, normalization, contrast enhancement or histogram matching,
// post-processing and scale restoration. Per-file failures are isolated
// into explicit Outcome values; no single file's failure may abort a
// batch.
package pipeline

import (
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"foct2nifti/internal/models"
	"foct2nifti/pkg/config"
	"foct2nifti/pkg/dims"
	"foct2nifti/pkg/histmatch"
	"foct2nifti/pkg/volume"
)

// ErrorKind classifies pipeline errors for the report collaborator.
type ErrorKind string

const (
	// KindIOError: buffer unreadable or unavailable. Fatal for the
	// file; retry is a caller policy.
	KindIOError ErrorKind = "io_error"

	// KindFormatUnrecognized: dimension recovery exhausted all
	// candidates. Fatal for the file.
	KindFormatUnrecognized ErrorKind = "format_unrecognized"

	// KindDataIntegrity: NaN/Inf values were detected in the decoded
	// buffer and replaced with zero. Recovered locally, reported as a
	// warning.
	KindDataIntegrity ErrorKind = "data_integrity"

	// KindDegenerateRange: the volume is constant; an all-zero result
	// is emitted instead of failing. Reported as a warning.
	KindDegenerateRange ErrorKind = "degenerate_range"

	// KindTargetUnavailable: a reference corpus yielded no usable
	// target histogram. The matching target is skipped, never fatal.
	KindTargetUnavailable ErrorKind = "target_unavailable"

	// KindSerializationFailure: the primary output format write
	// failed; the persistence collaborator falls back to the raw
	// format.
	KindSerializationFailure ErrorKind = "serialization_failure"
)

// Warning records a locally-recovered issue on a successful outcome, so
// downstream consumers know the data was altered.
type Warning struct {
	Kind    ErrorKind
	Message string
}

// Outcome is the tagged per-file result handed to the persistence and
// report collaborators.
type Outcome struct {
	// Path identifies the processed file
	Path string

	// Volume is the finished output volume in its original value
	// scale; nil when the file failed
	Volume *models.Volume

	// Shape is the recovered volume shape
	Shape models.Shape

	// Recovered is true when the shape came from the heuristic path
	// rather than the exact canonical match
	Recovered bool

	// Table is the audit mapping table of a matching run
	Table *histmatch.MappingTable

	// Metrics holds the distributional fit metrics of a matching run
	Metrics *models.QualityMetrics

	// Warnings lists locally-recovered issues (data integrity,
	// degenerate range)
	Warnings []Warning

	// Kind and Err describe the failure; Err is nil on success
	Kind ErrorKind
	Err  error
}

// Failed reports whether the file failed outright.
func (o *Outcome) Failed() bool {
	return o.Err != nil
}

// Pipeline converts FOCT buffers into enhanced or histogram-matched
// volumes. A nil target histogram selects the enhancement path; a
// non-nil target selects the matching path. The pipeline holds no
// mutable state across files, so one instance may process many files
// concurrently.
type Pipeline struct {
	cfg    *config.Config
	target *histmatch.Histogram
}

// New creates a pipeline with the given configuration and optional
// matching target.
func New(cfg *config.Config, target *histmatch.Histogram) *Pipeline {
	return &Pipeline{cfg: cfg, target: target}
}

// ProcessFile reads one scan file and runs the full pipeline on it.
func (p *Pipeline) ProcessFile(path string) Outcome {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Outcome{
			Path: path,
			Kind: KindIOError,
			Err:  fmt.Errorf("reading scan file: %w", err),
		}
	}
	return p.ProcessBuffer(path, buf)
}

// ProcessBuffer runs the full pipeline on a raw scan buffer. The buffer
// is treated as immutable; all working arrays are owned by this
// invocation and discarded at completion.
func (p *Pipeline) ProcessBuffer(path string, buf []byte) Outcome {
	out := Outcome{Path: path}

	shape, err := dims.Recover(len(buf), dims.ElementSize)
	if err != nil {
		out.Kind = KindFormatUnrecognized
		out.Err = fmt.Errorf("recovering dimensions: %w", err)
		return out
	}
	out.Shape = shape
	out.Recovered = len(buf) != dims.Canonical.ByteLen(dims.ElementSize)

	vol, err := volume.Decode(buf, shape)
	if err != nil {
		// Recover guarantees an exact byte match, so this only fires
		// on a programming error upstream.
		out.Kind = KindFormatUnrecognized
		out.Err = err
		return out
	}
	vol.VoxelSize.X = p.cfg.Processing.VoxelSize.X
	vol.VoxelSize.Y = p.cfg.Processing.VoxelSize.Y
	vol.VoxelSize.Z = p.cfg.Processing.VoxelSize.Z

	if replaced := volume.Sanitize(vol); replaced > 0 {
		out.Warnings = append(out.Warnings, Warning{
			Kind:    KindDataIntegrity,
			Message: fmt.Sprintf("replaced %d non-finite values with zero", replaced),
		})
	}

	if p.cfg.Processing.ReverseDepth {
		volume.ReverseDepth(vol)
	}

	normalized, norm := volume.Normalize(vol)
	if norm.Degenerate() {
		// No contrast transform is definable for a constant volume;
		// the defined policy is an all-zero result, not a failure.
		out.Warnings = append(out.Warnings, Warning{
			Kind:    KindDegenerateRange,
			Message: "constant volume, emitting all-zero result",
		})
		out.Volume = normalized
		return out
	}

	if p.target != nil {
		out.Volume = p.matchVolume(normalized, norm, &out)
	} else {
		out.Volume = p.enhanceVolume(normalized, norm, out.Recovered)
	}
	return out
}

// enhanceVolume runs the adaptive contrast enhancement path. Recovered
// non-standard files use the blended method, where the peak-detection
// heuristic is unreliable.
func (p *Pipeline) enhanceVolume(normalized *models.Volume, norm volume.Normalization, recovered bool) *models.Volume {
	method := volume.Method(p.cfg.Enhancement.Method)
	if recovered {
		method = volume.MethodBlended
	}
	enhanced := volume.Enhance(normalized, method, volume.EnhanceConfig{
		LowPercentile:  p.cfg.Enhancement.LowPercentile,
		HighPercentile: p.cfg.Enhancement.HighPercentile,
	})

	enhanced = p.postProcess(enhanced)
	norm.Restore(enhanced)
	return enhanced
}

// matchVolume runs the histogram specification path and records the
// audit table and quality metrics on the outcome.
func (p *Pipeline) matchVolume(normalized *models.Volume, norm volume.Normalization, out *Outcome) *models.Volume {
	quantized := volume.Quantize8Bit(normalized)
	mapped, table := histmatch.MatchVolume(quantized, *p.target, histmatch.MatchConfig{
		TargetSmoothSigma:   p.cfg.Matching.SmoothSigma,
		JumpThreshold:       p.cfg.Matching.JumpThreshold,
		JumpAlpha:           p.cfg.Matching.JumpAlpha,
		SmoothWindow:        p.cfg.Matching.SmoothWindow,
		RestoreMonotonicity: p.cfg.Matching.RestoreMonotonicity,
	})
	out.Table = &table

	if p.cfg.Post.MedianFilter || p.cfg.Post.InterSliceBlend {
		mapped = volume.PostProcess(mapped, volume.PostConfig{
			MedianFilter:    p.cfg.Post.MedianFilter,
			InterSliceBlend: p.cfg.Post.InterSliceBlend,
		})
	}

	mappedHist := histmatch.HistogramOf8Bit(mapped.Data)
	metrics := histmatch.Evaluate(&mappedHist, p.target)
	out.Metrics = &metrics

	result := volume.Dequantize8Bit(mapped)
	norm.Restore(result)
	return result
}

// postProcess quantizes an enhanced [0,1] volume into the 8-bit domain
// post-processing operates on, runs the filters, and maps back.
func (p *Pipeline) postProcess(v *models.Volume) *models.Volume {
	if !p.cfg.Post.MedianFilter && !p.cfg.Post.InterSliceBlend {
		return v
	}
	q := volume.Quantize8Bit(v)
	q = volume.PostProcess(q, volume.PostConfig{
		MedianFilter:    p.cfg.Post.MedianFilter,
		InterSliceBlend: p.cfg.Post.InterSliceBlend,
	})
	return volume.Dequantize8Bit(q)
}

// ProcessBatch processes many files concurrently with a bounded worker
// pool. Workers never propagate errors: each file's failure lands in
// its own outcome, keeping the rest of the batch unaffected.
func (p *Pipeline) ProcessBatch(paths []string) []Outcome {
	workers := p.cfg.Processing.Workers
	if workers <= 0 {
		workers = 1
	}

	outcomes := make([]Outcome, len(paths))
	var completed atomic.Int64

	var g errgroup.Group
	g.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			outcomes[i] = p.ProcessFile(path)
			done := completed.Add(1)
			if p.cfg.Output.Verbose {
				fmt.Printf("\rProcessing files: %.1f%% complete", float64(done)/float64(len(paths))*100)
			}
			return nil
		})
	}
	_ = g.Wait()
	if p.cfg.Output.Verbose && len(paths) > 0 {
		fmt.Println()
	}

	return outcomes
}
