// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package linefit

import "math"

// Point is an obstacle detection in the robot frame, stored in the polar form
// the sensor reports it. x points forward, y to the left.
type Point struct {
	Range   float64 // cm
	Heading float64 // rad, counter-clockwise from forward
}

// X returns the forward coordinate.
func (p Point) X() float64 { return p.Range * math.Cos(p.Heading) }

// Y returns the lateral coordinate, positive to the left.
func (p Point) Y() float64 { return p.Range * math.Sin(p.Heading) }

// PointsFromRanges pairs each range with the heading at the same index.
// The slices must have equal length.
func PointsFromRanges(ranges []int, headings []float64) ([]Point, error) {
	if len(ranges) != len(headings) {
		return nil, ErrLengthMismatch
	}
	pts := make([]Point, len(ranges))
	for i, r := range ranges {
		pts[i] = Point{Range: float64(r), Heading: headings[i]}
	}
	return pts, nil
}
