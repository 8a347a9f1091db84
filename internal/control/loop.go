// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package control

import (
	"context"
	"time"

	"github.com/relabs-tech/wall_follower/internal/monitoring"
	"github.com/relabs-tech/wall_follower/internal/protocol"
	"github.com/relabs-tech/wall_follower/internal/robot"
)

// OnStatus registers fn to be called after every control cycle. Register
// observers before calling Run.
func (c *Controller) OnStatus(fn func(Status)) {
	c.observers = append(c.observers, fn)
}

// Run executes the control law every Period until ctx is cancelled. Each
// cycle uses whatever telemetry state holds at that moment, possibly the same
// frame as the previous cycle, and never waits for the communication loop.
func (c *Controller) Run(ctx context.Context, state *robot.State) error {
	ticker := time.NewTicker(c.cfg.Period)
	defer ticker.Stop()

	monitoring.Logf("wall follower running every %v (setpoint %.0f cm)", c.cfg.Period, c.cfg.SetPoint)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("wall follower stopped")
			return nil
		case <-ticker.C:
			c.cycle(state)
		}
	}
}

func (c *Controller) cycle(state *robot.State) Status {
	target := state.TargetSpeed()
	frame, seq, ok := state.Telemetry()

	var st Status
	if !ok {
		st = Status{Mode: Idle, Line: c.line}
		if target != 0 {
			st.Mode = Following
		}
	} else {
		st = c.Step(frame, target)
		st.Stale = seq == c.lastSeq
		c.lastSeq = seq
		if st.Fallback {
			monitoring.Logf("degenerate wall fit, reusing slope=%.3f intercept=%.1f", st.Line.Slope, st.Line.Intercept)
		}
	}
	st.Time = time.Now()

	// the command is always written whole, even when it is (0, 0)
	state.SetCommand(st.Command)

	for _, fn := range c.observers {
		fn(st)
	}
	return st
}

// Stop commands the robot to halt. Used on shutdown so the last command sent
// is a stop.
func Stop(state *robot.State) {
	state.SetCommand(protocol.Command{})
}
