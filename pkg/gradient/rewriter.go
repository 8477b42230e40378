// Gradient infill G-code rewriter
//
// Copyright (C) 2026  Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package gradient rewrites the infill moves of sliced G-code so that
// extrusion grows near configured targets and shrinks away from them.
package gradient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gerrors "gradient-infill-go/pkg/errors"
	"gradient-infill-go/pkg/gcode"
	"gradient-infill-go/pkg/geometry"
	"gradient-infill-go/pkg/log"
	"gradient-infill-go/pkg/metrics"
	"gradient-infill-go/pkg/pool"
)

// Section is the part of a layer the stream is in.
type Section int

const (
	SectionNothing Section = iota
	SectionInnerWall
	SectionInfill
)

func (s Section) String() string {
	switch s {
	case SectionNothing:
		return "nothing"
	case SectionInnerWall:
		return "inner_wall"
	case SectionInfill:
		return "infill"
	}
	return fmt.Sprintf("Section(%d)", int(s))
}

// ctxCheckInterval is how many lines are processed between context checks.
const ctxCheckInterval = 4096

// startPosition is far outside any bed so the first segment never lands
// near a target by accident.
var startPosition = geometry.Point{X: -10000, Y: -10000}

type options struct {
	logger   *log.Logger
	observer Observer
	metrics  *metrics.GradientMetrics
	strategy InfillStrategy
}

// Option configures Process.
type Option func(*options)

// WithLogger sets the logger. The default is the "gradient" logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver registers an observer for rewritten moves.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithMetrics reports the run to gm when it finishes.
func WithMetrics(gm *metrics.GradientMetrics) Option {
	return func(o *options) { o.metrics = gm }
}

// WithStrategy overrides the strategy selected by Settings.InfillType.
func WithStrategy(s InfillStrategy) Option {
	return func(o *options) { o.strategy = s }
}

type state int

const (
	stateRunning state = iota
	stateStopped
)

type rewriter struct {
	settings Settings
	strategy InfillStrategy
	tracker  *Tracker
	observer Observer
	log      *log.Logger

	out *bufio.Writer

	state     state
	section   Section
	layer     int
	last      geometry.Point
	feed      float64
	feedKnown bool

	lineNo int
	stats  Stats
}

// Process reads G-code from r and writes it to w, rewriting extrusion
// and feed of infill moves. Every other line is copied byte for byte,
// including its line ending. A G91 stops all rewriting; the remainder of
// the stream is copied unchanged.
func Process(ctx context.Context, r io.Reader, w io.Writer, s Settings, opts ...Option) (*Stats, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: log.GetLogger("gradient")}
	for _, opt := range opts {
		opt(&o)
	}
	if o.strategy == nil {
		o.strategy = NewStrategy(s)
	}

	rw := &rewriter{
		settings: s,
		strategy: o.strategy,
		tracker:  NewTracker(s.Targets, s.LayerHeight),
		observer: o.observer,
		log:      o.logger,
		out:      bufio.NewWriter(w),
		last:     startPosition,
	}
	if _, ok := rw.strategy.(Linear); ok {
		rw.log.Warn("linear infill rewriting is not implemented, infill moves pass through unchanged")
	}

	start := time.Now()
	err := rw.run(ctx, bufio.NewReader(r))
	rw.stats.Duration = time.Since(start)
	if err != nil {
		return &rw.stats, err
	}

	rw.log.WithFields(log.Fields{
		"lines":     rw.stats.LinesRead,
		"rewritten": rw.stats.LinesRewritten,
		"layers":    rw.stats.Layers,
		"strategy":  rw.strategy.Name(),
	}).Info("gcode processed in %v", rw.stats.Duration)
	if o.metrics != nil {
		o.metrics.ObserveProcess(rw.stats.sample())
	}
	return &rw.stats, nil
}

func (rw *rewriter) run(ctx context.Context, br *bufio.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for {
		raw, readErr := br.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("read input: %w", readErr)
		}
		if raw != "" {
			rw.lineNo++
			rw.stats.LinesRead++
			if rw.lineNo%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if err := rw.handle(raw); err != nil {
				return err
			}
		}
		if readErr != nil {
			break
		}
	}
	if err := rw.out.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// splitEnding separates the content of a line from its "\n" or "\r\n".
func splitEnding(raw string) (content, ending string) {
	switch {
	case strings.HasSuffix(raw, "\r\n"):
		return raw[:len(raw)-2], "\r\n"
	case strings.HasSuffix(raw, "\n"):
		return raw[:len(raw)-1], "\n"
	}
	return raw, ""
}

func (rw *rewriter) handle(raw string) error {
	if rw.state == stateStopped {
		return rw.copyRaw(raw)
	}

	content, ending := splitEnding(raw)
	c, err := gcode.Classify(content)
	if err != nil {
		if he, ok := gerrors.As(err); ok {
			he.SetLine(rw.lineNo)
		}
		return err
	}

	switch c.Kind {
	case gcode.KindBeginLayer:
		// a layer marker is a comment line and ends infill like any other
		if rw.section == SectionInfill {
			rw.section = SectionNothing
		}
		rw.layer = c.Layer
		rw.stats.Layers++
		active := rw.tracker.Activate(c.Layer)
		if len(active) > 0 && rw.log.Enabled(log.DEBUG) {
			rw.log.Debug("layer %d: %d active target(s)", c.Layer, len(active))
		}
	case gcode.KindBeginInnerWall:
		rw.section = SectionInnerWall
	case gcode.KindEndInnerWall:
		rw.section = SectionNothing
	case gcode.KindBeginInfill:
		rw.section = SectionInfill
		return rw.copyRaw(raw)
	case gcode.KindRelativeMode:
		rw.state = stateStopped
		rw.stats.RelativeModeLine = rw.lineNo
		rw.log.Warn("relative positioning (G91) at line %d, remaining lines are copied unchanged", rw.lineNo)
		return rw.copyRaw(raw)
	}

	if c.Line != nil {
		if f, ok := c.Line.Get('F'); ok {
			rw.feed = f
			rw.feedKnown = true
		}
	}

	written := false
	if rw.section == SectionInfill {
		switch c.Kind {
		case gcode.KindFeedOnly:
			if err := rw.writeFeed(c.Line, ending); err != nil {
				return err
			}
			written = true
		case gcode.KindExtrusionMove:
			if written, err = rw.rewriteMove(c.Line, ending); err != nil {
				return err
			}
		case gcode.KindComment:
			rw.section = SectionNothing
		}
	}
	if !written {
		if err := rw.copyRaw(raw); err != nil {
			return err
		}
	}

	if c.Kind == gcode.KindExtrusionMove || c.Kind == gcode.KindPlainMove {
		x, _ := c.Line.Get('X')
		y, _ := c.Line.Get('Y')
		rw.last = geometry.Point{X: x, Y: y}
	}
	return nil
}

func (rw *rewriter) rewriteMove(line *gcode.Line, ending string) (bool, error) {
	x, _ := line.Get('X')
	y, _ := line.Get('Y')
	e0, _ := line.Get('E')
	seg := geometry.Segment{P1: rw.last, P2: geometry.Point{X: x, Y: y}}

	res, ok := rw.strategy.Apply(MoveInput{
		E0:      e0,
		F0:      rw.feed,
		Segment: seg,
		Active:  rw.tracker.Active(),
	})
	if !ok {
		rw.stats.SkippedMoves++
		return false, nil
	}

	line.Set('X', gcode.FormatCoord(x))
	line.Set('Y', gcode.FormatCoord(y))
	line.Set('E', gcode.FormatExtrusion(res.E))
	if rw.settings.GradualSpeed && rw.feedKnown && !line.Has('F') {
		line.Set('F', gcode.FormatFeed(res.F))
	}
	if err := rw.writeLine(line, ending); err != nil {
		return false, err
	}
	rw.stats.LinesRewritten++

	if rw.observer != nil {
		rw.observer.ObserveMove(Move{
			Line:    rw.lineNo,
			Layer:   rw.layer,
			Segment: seg,
			E0:      e0,
			E:       res.E,
			Ratio:   res.Ratio,
			Target:  rw.tracker.TargetIndex(res.Target),
		})
	}
	return true, nil
}

func (rw *rewriter) writeFeed(line *gcode.Line, ending string) error {
	feed := &gcode.Line{Command: "G1", Comment: line.Comment}
	feed.Set('F', gcode.FormatFeed(rw.feed))
	if err := rw.writeLine(feed, ending); err != nil {
		return err
	}
	rw.stats.FeedLines++
	return nil
}

func (rw *rewriter) writeLine(line *gcode.Line, ending string) error {
	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)

	line.WriteText(buf)
	buf.WriteString(ending)
	if _, err := rw.out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func (rw *rewriter) copyRaw(raw string) error {
	if _, err := rw.out.WriteString(raw); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
