// Layer preview images of rewritten infill
//
// Copyright (C) 2026  Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package preview renders the rewritten infill moves of a layer as a PNG,
// coloured by extrusion ratio from blue (low) to red (high).
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sync"

	"golang.org/x/image/vector"
	"seehuhn.de/go/geom/rect"
	"seehuhn.de/go/geom/vec"

	"gradient-infill-go/pkg/gradient"
)

// AllLayers makes a Collector keep moves of every layer.
const AllLayers = -1

// Collector records rewritten moves of one layer. It implements
// gradient.Observer.
type Collector struct {
	mu    sync.Mutex
	layer int
	moves []gradient.Move
}

// NewCollector creates a collector for the given layer, or AllLayers.
func NewCollector(layer int) *Collector {
	return &Collector{layer: layer}
}

// ObserveMove implements gradient.Observer.
func (c *Collector) ObserveMove(m gradient.Move) {
	if c.layer != AllLayers && m.Layer != c.layer {
		return
	}
	c.mu.Lock()
	c.moves = append(c.moves, m)
	c.mu.Unlock()
}

// Moves returns a copy of the recorded moves.
func (c *Collector) Moves() []gradient.Move {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]gradient.Move(nil), c.moves...)
}

// Options controls Render.
type Options struct {
	Width, Height int

	// Margin in pixels around the drawing.
	Margin int

	// LineWidth in pixels.
	LineWidth float64

	// MinRatio and MaxRatio map to blue and red. When both are zero the
	// range of the rendered moves is used.
	MinRatio, MaxRatio float64

	Background color.Color
}

// DefaultOptions returns a 800x800 white canvas.
func DefaultOptions() Options {
	return Options{
		Width:      800,
		Height:     800,
		Margin:     20,
		LineWidth:  2,
		Background: color.White,
	}
}

// Bounds returns the bounding box of all move segments.
func Bounds(moves []gradient.Move) (rect.Rect, bool) {
	if len(moves) == 0 {
		return rect.Rect{}, false
	}
	b := rect.Rect{LLx: math.Inf(1), LLy: math.Inf(1), URx: math.Inf(-1), URy: math.Inf(-1)}
	for _, m := range moves {
		for _, p := range [2]vec.Vec2{m.Segment.P1, m.Segment.P2} {
			b.LLx = math.Min(b.LLx, p.X)
			b.LLy = math.Min(b.LLy, p.Y)
			b.URx = math.Max(b.URx, p.X)
			b.URy = math.Max(b.URy, p.Y)
		}
	}
	return b, true
}

// RatioColor interpolates from blue at lo to red at hi.
func RatioColor(ratio, lo, hi float64) color.RGBA {
	t := 0.0
	if hi > lo {
		t = math.Max(0, math.Min(1, (ratio-lo)/(hi-lo)))
	}
	return color.RGBA{
		R: uint8(math.Round(255 * t)),
		G: 0,
		B: uint8(math.Round(255 * (1 - t))),
		A: 255,
	}
}

// Render draws moves fitted into the canvas. Y grows upwards as on the
// printer bed.
func Render(moves []gradient.Move, opts Options) (*image.RGBA, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", opts.Width, opts.Height)
	}
	if 2*opts.Margin >= opts.Width || 2*opts.Margin >= opts.Height {
		return nil, fmt.Errorf("margin %d leaves no room on a %dx%d canvas", opts.Margin, opts.Width, opts.Height)
	}
	bbox, ok := Bounds(moves)
	if !ok {
		return nil, fmt.Errorf("no moves to render")
	}

	lo, hi := opts.MinRatio, opts.MaxRatio
	if lo == 0 && hi == 0 {
		lo, hi = math.Inf(1), math.Inf(-1)
		for _, m := range moves {
			lo = math.Min(lo, m.Ratio)
			hi = math.Max(hi, m.Ratio)
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	bg := opts.Background
	if bg == nil {
		bg = color.White
	}
	fill(img, bg)

	dx := math.Max(bbox.URx-bbox.LLx, 1e-9)
	dy := math.Max(bbox.URy-bbox.LLy, 1e-9)
	innerW := float64(opts.Width - 2*opts.Margin)
	innerH := float64(opts.Height - 2*opts.Margin)
	scale := math.Min(innerW/dx, innerH/dy)

	toPixel := func(p vec.Vec2) vec.Vec2 {
		return vec.Vec2{
			X: float64(opts.Margin) + (p.X-bbox.LLx)*scale,
			Y: float64(opts.Height-opts.Margin) - (p.Y-bbox.LLy)*scale,
		}
	}

	half := math.Max(opts.LineWidth, 0.5) / 2
	r := vector.NewRasterizer(opts.Width, opts.Height)
	for _, m := range moves {
		a, b := toPixel(m.Segment.P1), toPixel(m.Segment.P2)
		d := b.Sub(a)
		l := d.Length()
		if l == 0 {
			d, l = vec.Vec2{X: 1}, 1
		}
		n := vec.Vec2{X: -d.Y, Y: d.X}.Mul(half / l)
		ext := d.Mul(half / l)
		a, b = a.Sub(ext), b.Add(ext)

		r.Reset(opts.Width, opts.Height)
		moveTo(r, a.Add(n))
		lineTo(r, b.Add(n))
		lineTo(r, b.Sub(n))
		lineTo(r, a.Sub(n))
		r.ClosePath()
		r.Draw(img, img.Bounds(), image.NewUniform(RatioColor(m.Ratio, lo, hi)), image.Point{})
	}
	return img, nil
}

func moveTo(r *vector.Rasterizer, p vec.Vec2) { r.MoveTo(float32(p.X), float32(p.Y)) }
func lineTo(r *vector.Rasterizer, p vec.Vec2) { r.LineTo(float32(p.X), float32(p.Y)) }

func fill(img *image.RGBA, c color.Color) {
	cr, cg, cb, ca := c.RGBA()
	px := [4]uint8{uint8(cr >> 8), uint8(cg >> 8), uint8(cb >> 8), uint8(ca >> 8)}
	for i := 0; i < len(img.Pix); i += 4 {
		copy(img.Pix[i:i+4], px[:])
	}
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}
