// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package linefit models a wall as the line y = m*x + b fitted to sonar
// detections by weighted linear least squares.
//
// With regressor rows [1, x_i], targets y_i and W = diag(w_i) the normal
// equations (AᵗWA) [b m]ᵗ = AᵗWy reduce to a 2x2 system:
//
//	| Σw    Σwx  | |b|   | Σwy  |
//	| Σwx   Σwx² | |m| = | Σwxy |
//
// which is solved by direct inversion.
package linefit

import (
	"errors"
	"math"
)

// DegenerateTolerance is the smallest weighted variance of x, relative to the
// weighted mean of x²+y², for which a fit is attempted. Points sharing one x
// (up to rounding) fall below it whatever the units or weight magnitude.
const DegenerateTolerance = 1e-9

var (
	// ErrDegenerateFit is returned when the weighted points do not determine a
	// unique line, e.g. all of them share the same x.
	ErrDegenerateFit  = errors.New("degenerate line fit")
	ErrLengthMismatch = errors.New("points and weights differ in length")
	ErrNoPoints       = errors.New("no points to fit")
)

// Line is y = Slope*x + Intercept in the robot frame.
type Line struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// DistanceToOrigin returns the perpendicular distance from the robot to the
// line.
func (l Line) DistanceToOrigin() float64 {
	return math.Abs(l.Intercept) / math.Sqrt(1+l.Slope*l.Slope)
}

// Side reports which side of the robot the line lies on: +1 for the left
// (intercept >= 0), -1 for the right.
func (l Line) Side() float64 {
	if l.Intercept < 0 {
		return -1
	}
	return 1
}

// Weight returns exp(-range²/decay). It lies in (0, 1] and strictly
// decreases as range grows from 0; results that would underflow are held at
// the smallest positive float. Larger decay widens the window of ranges that
// still influence the fit.
func Weight(rangeCM, decay float64) float64 {
	w := math.Exp(-rangeCM * rangeCM / decay)
	if w == 0 {
		return math.SmallestNonzeroFloat64
	}
	return w
}

// Weights applies Weight to every point.
func Weights(points []Point, decay float64) []float64 {
	w := make([]float64, len(points))
	for i, p := range points {
		w[i] = Weight(p.Range, decay)
	}
	return w
}

// Fit solves the weighted least squares problem for points and weights.
// Deciding what to do on ErrDegenerateFit is left to the caller.
func Fit(points []Point, weights []float64) (Line, error) {
	if len(points) != len(weights) {
		return Line{}, ErrLengthMismatch
	}
	if len(points) == 0 {
		return Line{}, ErrNoPoints
	}

	var sw, swx, swxx, swy, swyy, swxy float64
	for i, p := range points {
		w := weights[i]
		x, y := p.X(), p.Y()
		sw += w
		swx += w * x
		swxx += w * x * x
		swy += w * y
		swyy += w * y * y
		swxy += w * x * y
	}

	// det/sw² is the weighted variance of x
	det := sw*swxx - swx*swx
	if !(det > DegenerateTolerance*sw*(swxx+swyy)) {
		return Line{}, ErrDegenerateFit
	}

	// inverse of [[sw swx] [swx swxx]] is [[swxx -swx] [-swx sw]] / det
	b := (swxx*swy - swx*swxy) / det
	m := (sw*swxy - swx*swy) / det
	return Line{Slope: m, Intercept: b}, nil
}

// FitRanges converts ranges at the given mounting headings into points,
// weights them with decay and fits a line.
func FitRanges(ranges []int, headings []float64, decay float64) (Line, error) {
	pts, err := PointsFromRanges(ranges, headings)
	if err != nil {
		return Line{}, err
	}
	return Fit(pts, Weights(pts, decay))
}
