// Gradient targets and per-layer activation
//
// Copyright (C) 2026  Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gradient

import (
	"gradient-infill-go/pkg/geometry"
)

// Target is a gradient source. X and Y are in machine coordinates; the
// caller shifts request coordinates before building targets.
type Target struct {
	X, Y       float64
	ZStart     float64
	ZThickness float64
	Radius     float64
}

// Point returns the target position.
func (t Target) Point() geometry.Point {
	return geometry.Point{X: t.X, Y: t.Y}
}

// ActiveAt reports whether z lies in [ZStart, ZStart+ZThickness).
func (t Target) ActiveAt(z float64) bool {
	return t.ZStart <= z && z < t.ZStart+t.ZThickness
}

// Shifted returns the target moved by (dx, dy).
func (t Target) Shifted(dx, dy float64) Target {
	t.X += dx
	t.Y += dy
	return t
}

// Tracker keeps the targets active in the current layer.
type Tracker struct {
	targets     []Target
	layerHeight float64

	active []Target
	ids    []int // index into targets for each active entry
}

// NewTracker creates a tracker with no active targets.
func NewTracker(targets []Target, layerHeight float64) *Tracker {
	return &Tracker{targets: targets, layerHeight: layerHeight}
}

// Activate recomputes the active set for a layer from scratch and returns
// it. The returned slice is reused by the next call.
func (tr *Tracker) Activate(layer int) []Target {
	z := float64(layer) * tr.layerHeight
	tr.active = tr.active[:0]
	tr.ids = tr.ids[:0]
	for i, t := range tr.targets {
		if t.ActiveAt(z) {
			tr.active = append(tr.active, t)
			tr.ids = append(tr.ids, i)
		}
	}
	return tr.active
}

// Active returns the targets active in the current layer.
func (tr *Tracker) Active() []Target {
	return tr.active
}

// TargetIndex maps an index into Active to the configured target index.
// Negative values pass through.
func (tr *Tracker) TargetIndex(activeIdx int) int {
	if activeIdx < 0 || activeIdx >= len(tr.ids) {
		return -1
	}
	return tr.ids[activeIdx]
}
