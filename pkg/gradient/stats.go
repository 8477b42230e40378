package gradient

import (
	"fmt"
	"time"

	"gradient-infill-go/pkg/metrics"
)

// Stats summarizes one Process run.
type Stats struct {
	LinesRead      int
	LinesRewritten int
	FeedLines      int
	Layers         int
	SkippedMoves   int

	// RelativeModeLine is the 1-based line of the G91 that stopped
	// processing, or 0.
	RelativeModeLine int

	Duration time.Duration
}

// Halted reports whether a relative-mode command stopped processing.
func (s *Stats) Halted() bool {
	return s.RelativeModeLine > 0
}

func (s *Stats) String() string {
	return fmt.Sprintf("lines=%d rewritten=%d feed=%d layers=%d skipped=%d halted_at=%d in %v",
		s.LinesRead, s.LinesRewritten, s.FeedLines, s.Layers, s.SkippedMoves,
		s.RelativeModeLine, s.Duration)
}

func (s *Stats) sample() metrics.ProcessSample {
	return metrics.ProcessSample{
		Lines:        s.LinesRead,
		Rewritten:    s.LinesRewritten,
		FeedLines:    s.FeedLines,
		SkippedMoves: s.SkippedMoves,
		RelativeHalt: s.Halted(),
		Duration:     s.Duration,
	}
}
