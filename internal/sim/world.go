// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sim is an in-process stand-in for the robot controller: a unicycle
// robot with a sonar ring driving next to a single straight wall.
package sim

import "math"

// Wall is the infinite line y = Y in world coordinates (cm).
type Wall struct {
	Y float64
}

// Pose is the robot position in world coordinates. Theta is counter-clockwise
// from the world x axis, in radians.
type Pose struct {
	X, Y, Theta float64
}

// Advance integrates a unicycle for dt seconds using the midpoint heading.
func (p Pose) Advance(trans, ang, dt float64) Pose {
	mid := p.Theta + ang*dt/2
	return Pose{
		X:     p.X + trans*math.Cos(mid)*dt,
		Y:     p.Y + trans*math.Sin(mid)*dt,
		Theta: normalizeAngle(p.Theta + ang*dt),
	}
}

// Range casts a ray from p along the robot-relative heading and returns the
// distance to the wall, capped at maxRange.
func (w Wall) Range(p Pose, heading, maxRange float64) float64 {
	sin := math.Sin(p.Theta + heading)
	if math.Abs(sin) < 1e-12 {
		return maxRange
	}
	t := (w.Y - p.Y) / sin
	if t < 0 || t > maxRange {
		return maxRange
	}
	return t
}

// normalizeAngle maps a into [0, 2π).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}
