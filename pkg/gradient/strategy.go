package gradient

import (
	"gradient-infill-go/pkg/geometry"
)

// MoveInput is one infill extrusion move handed to a strategy.
type MoveInput struct {
	E0      float64
	F0      float64
	Segment geometry.Segment
	Active  []Target
}

// InfillStrategy rewrites infill extrusion moves. Apply returns false
// when the move should be emitted unchanged.
type InfillStrategy interface {
	Name() string
	Apply(in MoveInput) (Result, bool)
}

// NewStrategy returns the strategy for s.InfillType.
func NewStrategy(s Settings) InfillStrategy {
	if s.InfillType == InfillLinear {
		return Linear{}
	}
	return SmallSegments{remap: NewRemapper(s)}
}

// SmallSegments gives every move one flow value computed from the
// distance between its midpoint and the nearest active target.
type SmallSegments struct {
	remap Remapper
}

func (SmallSegments) Name() string { return InfillSmallSegments.String() }

func (s SmallSegments) Apply(in MoveInput) (Result, bool) {
	return s.remap.Remap(in.E0, in.F0, in.Segment, in.Active), true
}

// Linear would split long moves into shorter ones with their own flow.
// It is not implemented yet; moves pass through unchanged.
type Linear struct{}

func (Linear) Name() string { return InfillLinear.String() }

func (Linear) Apply(MoveInput) (Result, bool) {
	return Result{}, false
}
