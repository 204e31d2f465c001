// Package dims recovers the 3D shape of a raw FOCT byte buffer whose
// declared dimensions may not match its actual size. Recovery is a pure
// function of the byte length and the element size: an exact match
// against the canonical scan shape is tried first, then a curated table
// of shapes observed in anomalous export files, and finally a generic
// search seeded at the cube root of the element count.
package dims

import (
	"fmt"
	"math"

	"foct2nifti/internal/models"
)

// ElementSize is the byte width of one voxel sample. FOCT exports store
// 32-bit little-endian floats.
const ElementSize = 4

// Canonical is the standard scan shape produced by the instrument.
var Canonical = models.Shape{Depth: 640, Width: 304, Height: 304}

// ErrUnrecognized is returned when no exact shape can be recovered for
// a buffer, neither from the curated table nor from the generic search.
type ErrUnrecognized struct {
	ByteLen  int
	ElemSize int
}

func (e *ErrUnrecognized) Error() string {
	return fmt.Sprintf("unrecognized buffer format: %d bytes at element size %d", e.ByteLen, e.ElemSize)
}

// Candidate is one entry of the curated alternate-shape table. Each
// record carries the shape and a note on where that layout was first
// observed, so new anomalous formats can be appended without touching
// the matching logic.
type Candidate struct {
	Shape models.Shape
	Note  string
}

// candidates is the prioritized table of known alternate shapes,
// curated from previously observed anomalous export files. Earlier
// entries win when several match, so more common layouts come first.
// A candidate is accepted only when its byte length equals the buffer
// length exactly; a shape that merely fits within the buffer would
// silently truncate or misalign the data.
var candidates = []Candidate{
	{models.Shape{Depth: 640, Width: 304, Height: 304}, "canonical 640-slice macular cube"},
	{models.Shape{Depth: 640, Width: 400, Height: 400}, "wide-field 400x400 raster"},
	{models.Shape{Depth: 512, Width: 256, Height: 256}, "half-resolution legacy export"},
	{models.Shape{Depth: 256, Width: 512, Height: 512}, "high-lateral-density raster"},
	{models.Shape{Depth: 160, Width: 120, Height: 34}, "truncated preview block"},
	{models.Shape{Depth: 128, Width: 304, Height: 304}, "partial cube from aborted scan"},
}

// maxSearchRadius bounds the generic neighborhood search around the
// cube-root seed. Rings beyond this radius signal an unrecognized
// format rather than an implausibly elongated recovered shape.
const maxSearchRadius = 512

// Recover determines the 3D shape of a raw buffer of byteLen bytes
// holding elemSize-byte samples.
//
// The exact path returns the canonical shape with no probing when the
// byte length matches it. Otherwise the curated candidate table is
// scanned in priority order, and if that fails a generic search expands
// square rings of (width, height) pairs around the cube-root seed,
// deriving depth as the exact quotient of the element count. Only
// triples whose byte length equals byteLen exactly are ever accepted.
func Recover(byteLen, elemSize int) (models.Shape, error) {
	if byteLen <= 0 || elemSize <= 0 {
		return models.Shape{}, &ErrUnrecognized{ByteLen: byteLen, ElemSize: elemSize}
	}

	// Exact path: the canonical shape needs no probing at all.
	if byteLen == Canonical.ByteLen(elemSize) {
		return Canonical, nil
	}

	// Heuristic recovery: curated table first, in priority order.
	for _, c := range candidates {
		if c.Shape.ByteLen(elemSize) == byteLen {
			return c.Shape, nil
		}
	}

	// Generic search. A buffer that is not a whole number of elements
	// cannot produce an exact triple at all.
	if byteLen%elemSize != 0 {
		return models.Shape{}, &ErrUnrecognized{ByteLen: byteLen, ElemSize: elemSize}
	}
	return searchShape(byteLen/elemSize, byteLen, elemSize)
}

// searchShape looks for an exact-dividing (width, height, depth) triple
// for n elements, expanding square rings around the integer cube root.
// Within a ring every valid triple is scored by its distance from a
// cubic aspect ratio, with the smallest depth breaking ties, and the
// first ring containing any valid triple wins.
func searchShape(n, byteLen, elemSize int) (models.Shape, error) {
	seed := int(math.Round(math.Cbrt(float64(n))))
	if seed < 1 {
		seed = 1
	}

	for radius := 0; radius <= maxSearchRadius; radius++ {
		best := models.Shape{}
		bestScore := math.Inf(1)

		consider := func(w, h int) {
			if w < 1 || h < 1 || n%(w*h) != 0 {
				return
			}
			s := models.Shape{Depth: n / (w * h), Width: w, Height: h}
			if s.ByteLen(elemSize) != byteLen {
				return
			}
			score := aspectScore(s)
			if score < bestScore || (score == bestScore && s.Depth < best.Depth) {
				best = s
				bestScore = score
			}
		}

		// Only the ring boundary is new at this radius.
		if radius == 0 {
			consider(seed, seed)
		} else {
			for w := seed - radius; w <= seed+radius; w++ {
				consider(w, seed-radius)
				consider(w, seed+radius)
			}
			for h := seed - radius + 1; h <= seed+radius-1; h++ {
				consider(seed-radius, h)
				consider(seed+radius, h)
			}
		}

		if best.Valid() {
			return best, nil
		}
	}

	return models.Shape{}, &ErrUnrecognized{ByteLen: byteLen, ElemSize: elemSize}
}

// aspectScore measures how far a shape is from cubic. Zero means a
// perfect cube; the score is symmetric in all three axes.
func aspectScore(s models.Shape) float64 {
	ld := math.Log(float64(s.Depth))
	lw := math.Log(float64(s.Width))
	lh := math.Log(float64(s.Height))
	mean := (ld + lw + lh) / 3
	return math.Abs(ld-mean) + math.Abs(lw-mean) + math.Abs(lh-mean)
}

// Candidates returns a copy of the curated alternate-shape table, in
// priority order. Exposed for diagnostics and tests.
func Candidates() []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	return out
}
