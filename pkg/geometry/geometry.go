// Planar distance helpers for infill moves
//
// Copyright (C) 2026  Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package geometry provides the point and segment distance primitives used
// to measure how far an infill move lies from a gradient target.
package geometry

import (
	"math"

	"seehuhn.de/go/geom/vec"
)

// Point is a position in the XY plane of the machine, in mm.
type Point = vec.Vec2

// Segment is a single move from P1 to P2.
type Segment struct {
	P1, P2 Point
}

// Midpoint returns the point halfway between the segment ends.
func (s Segment) Midpoint() Point {
	return s.P1.Add(s.P2).Mul(0.5)
}

// Length returns the length of the segment.
func (s Segment) Length() float64 {
	return s.P2.Sub(s.P1).Length()
}

// PointDistance returns the Euclidean distance between two points.
func PointDistance(p1, p2 Point) float64 {
	return p1.Sub(p2).Length()
}

// SegmentPointDistance returns the distance from p to the closest point on
// the segment. A zero-length segment degenerates to the distance from its
// start point.
func SegmentPointDistance(s Segment, p Point) float64 {
	d := s.P2.Sub(s.P1)
	norm := d.X*d.X + d.Y*d.Y
	if norm == 0 {
		return PointDistance(s.P1, p)
	}
	rel := p.Sub(s.P1)
	u := (rel.X*d.X + rel.Y*d.Y) / norm
	u = math.Max(0, math.Min(1, u))
	return PointDistance(s.P1.Add(d.Mul(u)), p)
}

// MinDistanceToTargets returns the smallest distance from the segment's
// midpoint to any of the targets, or +Inf when there are none.
func MinDistanceToTargets(s Segment, targets []Point) float64 {
	mid := s.Midpoint()
	best := math.Inf(1)
	for _, t := range targets {
		if d := PointDistance(mid, t); d < best {
			best = d
		}
	}
	return best
}
