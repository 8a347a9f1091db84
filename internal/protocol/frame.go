// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package protocol

// Command is a motion command for the robot controller.
type Command struct {
	Translational float64 `json:"translational"` // cm/s
	Angular       float64 `json:"angular"`       // rad/s, counter-clockwise positive
}

// Pose is the odometry estimate reported by the robot controller.
type Pose struct {
	X     int     `json:"x"`     // cm
	Y     int     `json:"y"`     // cm
	Theta float64 `json:"theta"` // rad
}

// SensorFrame is one telemetry update: sonar distances in mounting order
// followed by the robot pose.
type SensorFrame struct {
	Distances []int `json:"distances"` // cm
	Pose      Pose  `json:"pose"`
}

// Clone returns a deep copy so callers can hand frames across goroutines.
func (f SensorFrame) Clone() SensorFrame {
	out := f
	if f.Distances != nil {
		out.Distances = make([]int, len(f.Distances))
		copy(out.Distances, f.Distances)
	}
	return out
}
