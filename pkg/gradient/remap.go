package gradient

import (
	"gradient-infill-go/pkg/geometry"
)

// MapRange linearly maps s from [a1, a2] onto [b1, b2]. Values outside
// [a1, a2] extrapolate.
func MapRange(a1, a2, b1, b2, s float64) float64 {
	return b1 + (s-a1)*(b2-b1)/(a2-a1)
}

// Result is the outcome of remapping one move.
type Result struct {
	E float64
	F float64

	// Ratio is the extrusion multiplier applied to the original E.
	Ratio float64

	// Target is the index into the active targets of the winning
	// candidate, or -1 when the baseline minimum flow was kept.
	Target int
}

// Remapper computes new extrusion and feed values from target distances.
type Remapper struct {
	maxRatio     float64
	minRatio     float64
	gradient     bool
	gradualSpeed bool
	maxOverSpeed float64
	minOverSpeed float64
}

// NewRemapper builds a remapper from validated settings.
func NewRemapper(s Settings) Remapper {
	return Remapper{
		maxRatio:     s.MaxFlow / 100,
		minRatio:     s.MinFlow / 100,
		gradient:     s.Gradient,
		gradualSpeed: s.GradualSpeed,
		maxOverSpeed: s.MaxOverSpeedFactor / 100,
		minOverSpeed: s.MinOverSpeedFactor / 100,
	}
}

// Ratio returns the extrusion multiplier a single target gives at dist,
// and whether the target has any effect there.
func (r Remapper) Ratio(dist, radius float64) (float64, bool) {
	if !(dist < radius) {
		return 0, false
	}
	if r.gradient {
		return MapRange(0, radius, r.maxRatio, r.minRatio, dist), true
	}
	return r.maxRatio, true
}

// Remap scales e0 and f0 for a move over seg. The move starts at minimum
// flow; each active target within its radius proposes a candidate and the
// candidate with strictly the largest extrusion wins.
func (r Remapper) Remap(e0, f0 float64, seg geometry.Segment, active []Target) Result {
	res := Result{
		E:      e0 * r.minRatio,
		F:      f0 / r.minRatio,
		Ratio:  r.minRatio,
		Target: -1,
	}

	for i, t := range active {
		dist := geometry.MinDistanceToTargets(seg, []geometry.Point{t.Point()})
		ratio, ok := r.Ratio(dist, t.Radius)
		if !ok {
			continue
		}
		if candE := e0 * ratio; candE > res.E {
			res.E = candE
			res.F = f0 / ratio
			res.Ratio = ratio
			res.Target = i
		}
	}

	if r.gradualSpeed {
		if hi := f0 * r.maxOverSpeed; res.F > hi {
			res.F = hi
		}
		if lo := f0 * r.minOverSpeed; res.F < lo {
			res.F = lo
		}
	}
	return res
}
