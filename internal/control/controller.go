// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package control implements the wall following control law.
//
// Conventions: the robot frame has x pointing forward and y to the left, and
// sonar headings are counter-clockwise from x. A fitted wall line y = m·x + b
// with b >= 0 lies on the left. Positive angular velocity turns left.
package control

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/relabs-tech/wall_follower/internal/linefit"
	"github.com/relabs-tech/wall_follower/internal/protocol"
)

// Mode is the controller state.
type Mode int

const (
	// Idle commands no motion and skips the line fit.
	Idle Mode = iota
	// Following runs the full control law.
	Following
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Following:
		return "following"
	default:
		return "unknown"
	}
}

// MarshalText lets Mode appear by name in JSON status messages.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*m = Idle
	case "following":
		*m = Following
	default:
		return fmt.Errorf("unknown mode %q", text)
	}
	return nil
}

// Config holds the control law parameters.
type Config struct {
	// SensorAngles are the sonar mounting headings in radians, indexed like
	// the distances of a sensor frame.
	SensorAngles []float64
	// SetPoint is the desired distance to the wall (cm).
	SetPoint float64
	// KE weighs the distance error, KS the drift rate term.
	KE float64
	KS float64
	// MaxTrans bounds |translational| (cm/s), MaxAng bounds |angular| (rad/s).
	MaxTrans float64
	MaxAng   float64
	// DecayConstant is the sonar weight falloff, see linefit.Weight.
	DecayConstant float64
	Period        time.Duration
}

func (c Config) validate() error {
	if len(c.SensorAngles) == 0 {
		return errors.New("no sensor angles configured")
	}
	if c.MaxTrans <= 0 || c.MaxAng <= 0 {
		return errors.New("speed limits must be positive")
	}
	if c.DecayConstant <= 0 {
		return errors.New("decay constant must be positive")
	}
	if c.Period <= 0 {
		return errors.New("control period must be positive")
	}
	return nil
}

// Status describes one control cycle.
type Status struct {
	Mode Mode         `json:"mode"`
	Line linefit.Line `json:"line"`
	// Fallback is set when the fit failed and the previous line was reused.
	Fallback bool    `json:"fallback"`
	Error    float64 `json:"error"`
	Rate     float64 `json:"rate"`
	// Telemetry is false while no sensor frame has been received yet.
	Telemetry bool             `json:"telemetry"`
	Stale     bool             `json:"stale"`
	Command   protocol.Command `json:"command"`
	Time      time.Time        `json:"time"`
}

// Controller turns sensor frames into motion commands. It keeps the last
// good line for use when a fit is degenerate, so it is not safe for
// concurrent use.
type Controller struct {
	cfg       Config
	line      linefit.Line
	lastSeq   uint64
	observers []func(Status)
}

// New validates cfg and returns a controller. Until the first successful
// fit, the fallback line is a wall at exactly the setpoint on the left.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Controller{
		cfg:  cfg,
		line: linefit.Line{Slope: 0, Intercept: cfg.SetPoint},
	}, nil
}

// Config returns the controller parameters.
func (c *Controller) Config() Config { return c.cfg }

// Line returns the most recent usable wall line.
func (c *Controller) Line() linefit.Line { return c.line }

// Step runs one cycle of the control law on frame with the operator target
// speed target.
func (c *Controller) Step(frame protocol.SensorFrame, target float64) Status {
	st := Status{Mode: Idle, Line: c.line, Telemetry: true}
	target = bound(target, c.cfg.MaxTrans)
	if target == 0 {
		return st
	}
	st.Mode = Following

	line, err := linefit.FitRanges(frame.Distances, c.cfg.SensorAngles, c.cfg.DecayConstant)
	if err != nil {
		st.Fallback = true
		line = c.line
	} else {
		c.line = line
	}
	st.Line = line

	st.Error = line.DistanceToOrigin() - c.cfg.SetPoint
	st.Rate = RateTerm(target, line.Slope)
	angular := line.Side()*c.cfg.KE*st.Error + c.cfg.KS*st.Rate

	trans, angular := Clamp(target, angular, c.cfg.MaxAng)
	st.Command = protocol.Command{
		Translational: bound(trans, c.cfg.MaxTrans),
		Angular:       angular,
	}
	return st
}

// RateTerm is the lateral drift of the wall in the robot frame:
// |trans·sin(atan(slope))|, negative when the slope is.
func RateTerm(trans, slope float64) float64 {
	r := math.Abs(trans * math.Sin(math.Atan(slope)))
	if slope < 0 {
		r = -r
	}
	return r
}

// Clamp limits |ang| to maxAng while keeping the turning radius trans/ang.
// Commands already within the limit are returned unchanged.
func Clamp(trans, ang, maxAng float64) (float64, float64) {
	if math.Abs(ang) <= maxAng {
		return trans, ang
	}
	radius := trans / math.Abs(ang)
	return radius * maxAng, math.Copysign(maxAng, ang)
}

func bound(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
