package gcode

import (
	"strconv"
	"strings"

	gerrors "gradient-infill-go/pkg/errors"
)

// Kind is the role of a line for the rewriter.
type Kind int

const (
	KindOther Kind = iota
	KindBeginLayer
	KindBeginInnerWall
	KindEndInnerWall
	KindBeginInfill
	KindRelativeMode
	KindExtrusionMove
	KindPlainMove
	KindFeedOnly
	KindComment
)

var kindNames = map[Kind]string{
	KindOther:          "other",
	KindBeginLayer:     "begin_layer",
	KindBeginInnerWall: "begin_inner_wall",
	KindEndInnerWall:   "end_inner_wall",
	KindBeginInfill:    "begin_infill",
	KindRelativeMode:   "relative_mode",
	KindExtrusionMove:  "extrusion_move",
	KindPlainMove:      "plain_move",
	KindFeedOnly:       "feed_only",
	KindComment:        "comment",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Slicer markers. Matching is case-sensitive and anchored at column 0.
const (
	MarkerLayer     = ";LAYER:"
	MarkerInnerWall = ";TYPE:WALL-INNER"
	MarkerOuterWall = ";TYPE:WALL-OUTER"
	MarkerInfill    = ";TYPE:FILL"
)

// Classification is the result of Classify.
type Classification struct {
	Kind Kind

	// Layer is set for KindBeginLayer.
	Layer int

	// Line is set for every G0/G1 line, whatever its kind.
	Line *Line
}

// Classify determines the kind of a raw line (without line ending).
func Classify(raw string) (Classification, error) {
	switch {
	case strings.HasPrefix(raw, MarkerLayer):
		layer, err := strconv.Atoi(strings.TrimSpace(raw[len(MarkerLayer):]))
		if err != nil {
			return Classification{}, gerrors.ParseError(raw, "layer index is not an integer")
		}
		return Classification{Kind: KindBeginLayer, Layer: layer}, nil
	case strings.HasPrefix(raw, MarkerInnerWall):
		return Classification{Kind: KindBeginInnerWall}, nil
	case strings.HasPrefix(raw, MarkerOuterWall):
		return Classification{Kind: KindEndInnerWall}, nil
	case strings.HasPrefix(raw, MarkerInfill):
		return Classification{Kind: KindBeginInfill}, nil
	}

	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "G91") {
		return Classification{Kind: KindRelativeMode}, nil
	}
	if strings.HasPrefix(trimmed, ";") {
		return Classification{Kind: KindComment}, nil
	}
	if !strings.HasPrefix(trimmed, "G0") && !strings.HasPrefix(trimmed, "G1") {
		return Classification{Kind: KindOther}, nil
	}

	line, err := Tokenize(raw)
	if err != nil {
		return Classification{}, err
	}
	if !line.IsMove() {
		// G10, G11, G1234 ...
		return Classification{Kind: KindOther}, nil
	}

	c := Classification{Kind: KindOther, Line: line}
	hasXY := line.Has('X') && line.Has('Y')
	switch {
	case hasXY && line.Has('E'):
		c.Kind = KindExtrusionMove
	case hasXY:
		c.Kind = KindPlainMove
	case line.Has('F') && !line.Has('X') && !line.Has('Y') && !line.Has('Z') && !line.Has('E'):
		c.Kind = KindFeedOnly
	}
	return c, nil
}
