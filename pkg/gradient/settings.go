package gradient

import (
	"fmt"
	"strings"

	gerrors "gradient-infill-go/pkg/errors"
)

// InfillType selects how infill moves are rewritten.
type InfillType int

const (
	// InfillSmallSegments suits gyroid and honeycomb infill made of many
	// short moves; each move gets a single flow value.
	InfillSmallSegments InfillType = iota

	// InfillLinear suits long straight infill lines (lines, grid).
	InfillLinear
)

func (t InfillType) String() string {
	switch t {
	case InfillSmallSegments:
		return "small-segments"
	case InfillLinear:
		return "linear"
	}
	return fmt.Sprintf("InfillType(%d)", int(t))
}

// ParseInfillType accepts "small-segments", "small_segments" or "linear".
func ParseInfillType(s string) (InfillType, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-")) {
	case "small-segments":
		return InfillSmallSegments, nil
	case "linear":
		return InfillLinear, nil
	}
	return 0, gerrors.ConfigurationError("infill_type", fmt.Sprintf("unknown infill type %q", s))
}

// Settings configures one Process run. Flow and over-speed values are
// percentages.
type Settings struct {
	InfillType InfillType

	MaxFlow float64
	MinFlow float64

	Targets []Target

	// Gradient interpolates flow by distance; otherwise flow is MaxFlow
	// inside a target radius and MinFlow outside.
	Gradient bool

	// GradualSpeed scales feed inversely to flow, clamped to the
	// over-speed bounds, and appends it to moves without an F word.
	GradualSpeed bool

	LayerHeight float64

	MaxOverSpeedFactor float64
	MinOverSpeedFactor float64
}

// DefaultSettings returns the settings used by the original service.
func DefaultSettings() Settings {
	return Settings{
		InfillType:         InfillSmallSegments,
		MaxFlow:            350,
		MinFlow:            50,
		GradualSpeed:       true,
		LayerHeight:        0.2,
		MaxOverSpeedFactor: 200,
		MinOverSpeedFactor: 60,
	}
}

// Validate rejects settings that would divide by zero or never match.
func (s Settings) Validate() error {
	switch {
	case s.MinFlow <= 0:
		return gerrors.ConfigurationError("min_flow", fmt.Sprintf("must be above 0, got %v", s.MinFlow))
	case s.MaxFlow <= 0:
		return gerrors.ConfigurationError("max_flow", fmt.Sprintf("must be above 0, got %v", s.MaxFlow))
	case s.LayerHeight <= 0:
		return gerrors.ConfigurationError("layer_height", fmt.Sprintf("must be above 0, got %v", s.LayerHeight))
	case s.Gradient && s.MaxFlow == s.MinFlow:
		return gerrors.ConfigurationError("max_flow", "must differ from min_flow in gradient mode")
	case s.MinOverSpeedFactor > s.MaxOverSpeedFactor:
		return gerrors.ConfigurationError("min_over_speed_factor",
			fmt.Sprintf("%v exceeds max_over_speed_factor %v", s.MinOverSpeedFactor, s.MaxOverSpeedFactor))
	}
	for i, t := range s.Targets {
		if t.Radius <= 0 {
			return gerrors.ConfigurationError(fmt.Sprintf("infill_targets[%d].radius", i),
				fmt.Sprintf("must be above 0, got %v", t.Radius))
		}
		if t.ZThickness < 0 {
			return gerrors.ConfigurationError(fmt.Sprintf("infill_targets[%d].z_thickness", i),
				fmt.Sprintf("must not be negative, got %v", t.ZThickness))
		}
	}
	return nil
}
