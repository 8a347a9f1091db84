// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package robot holds the state shared between the communication loop and the
// wall follower.
package robot

import (
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/wall_follower/internal/protocol"
)

// State is the latest-value cell shared by the communication and control
// loops. Each field group has its own lock; readers always get a copy, so a
// half-written frame or command is never observable.
type State struct {
	telemetryMu   sync.RWMutex
	telemetry     protocol.SensorFrame
	telemetrySeq  uint64
	telemetryTime time.Time

	commandMu sync.RWMutex
	command   protocol.Command

	targetMu sync.RWMutex
	target   float64
	maxTrans float64
}

// NewState returns an empty state. Operator target speeds are clamped to
// ±maxTrans.
func NewState(maxTrans float64) *State {
	return &State{maxTrans: math.Abs(maxTrans)}
}

// SetTelemetry replaces the latest sensor frame.
func (s *State) SetTelemetry(f protocol.SensorFrame) {
	f = f.Clone()
	s.telemetryMu.Lock()
	defer s.telemetryMu.Unlock()
	s.telemetry = f
	s.telemetrySeq++
	s.telemetryTime = time.Now()
}

// Telemetry returns the latest sensor frame together with its sequence
// number. ok is false until the first frame has been stored. The sequence
// increments with every SetTelemetry, so an unchanged value means the frame is
// stale.
func (s *State) Telemetry() (f protocol.SensorFrame, seq uint64, ok bool) {
	s.telemetryMu.RLock()
	defer s.telemetryMu.RUnlock()
	if s.telemetrySeq == 0 {
		return protocol.SensorFrame{}, 0, false
	}
	return s.telemetry.Clone(), s.telemetrySeq, true
}

// SetCommand replaces the command the communication loop transmits next.
func (s *State) SetCommand(c protocol.Command) {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	s.command = c
}

// Command returns the latest command.
func (s *State) Command() protocol.Command {
	s.commandMu.RLock()
	defer s.commandMu.RUnlock()
	return s.command
}

// SetTargetSpeed records the translational speed requested by the operator
// and returns the value actually stored.
func (s *State) SetTargetSpeed(v float64) float64 {
	if v > s.maxTrans {
		v = s.maxTrans
	} else if v < -s.maxTrans {
		v = -s.maxTrans
	}
	s.targetMu.Lock()
	defer s.targetMu.Unlock()
	s.target = v
	return v
}

// TargetSpeed returns the operator requested translational speed.
func (s *State) TargetSpeed() float64 {
	s.targetMu.RLock()
	defer s.targetMu.RUnlock()
	return s.target
}

// Snapshot is a point-in-time copy of the whole state, for reporting.
type Snapshot struct {
	Telemetry     *protocol.SensorFrame `json:"telemetry,omitempty"`
	TelemetrySeq  uint64                `json:"telemetry_seq"`
	TelemetryTime time.Time             `json:"telemetry_time,omitempty"`
	Command       protocol.Command      `json:"command"`
	TargetSpeed   float64               `json:"target_speed"`
}

// Snapshot copies every field group. Groups are read one after the other, so
// the result may mix values from different cycles.
func (s *State) Snapshot() Snapshot {
	var snap Snapshot
	s.telemetryMu.RLock()
	if s.telemetrySeq > 0 {
		f := s.telemetry.Clone()
		snap.Telemetry = &f
		snap.TelemetrySeq = s.telemetrySeq
		snap.TelemetryTime = s.telemetryTime
	}
	s.telemetryMu.RUnlock()

	snap.Command = s.Command()
	snap.TargetSpeed = s.TargetSpeed()
	return snap
}
