package gradient

import (
	"gradient-infill-go/pkg/geometry"
)

// Move describes one rewritten infill move.
type Move struct {
	Line    int
	Layer   int
	Segment geometry.Segment
	E0      float64
	E       float64
	Ratio   float64

	// Target is the configured target index that won, or -1.
	Target int
}

// Observer receives every rewritten move in stream order.
type Observer interface {
	ObserveMove(m Move)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(m Move)

func (f ObserverFunc) ObserveMove(m Move) { f(m) }
