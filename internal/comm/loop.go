// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package comm runs the serial exchange with the robot controller: one
// command out and one sensor frame back per period.
package comm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/wall_follower/internal/monitoring"
	"github.com/relabs-tech/wall_follower/internal/protocol"
	"github.com/relabs-tech/wall_follower/internal/robot"
)

// Link is the transport surface the loop needs.
type Link interface {
	Send(frame []byte) (int, error)
	ReceiveWithTimeout(ctx context.Context, size int, timeout time.Duration) ([]byte, error)
	Flush() error
}

// Loop exchanges frames with the robot every Period. ReceiveTimeout should be
// well below Period.
type Loop struct {
	Link           Link
	Codec          *protocol.Codec
	State          *robot.State
	Period         time.Duration
	ReceiveTimeout time.Duration

	observers []func(protocol.SensorFrame)
}

// OnFrame registers fn to receive every successfully decoded frame. Register
// observers before calling Run.
func (l *Loop) OnFrame(fn func(protocol.SensorFrame)) {
	l.observers = append(l.observers, fn)
}

// Run loops until ctx is cancelled. Send, receive and decode failures are
// logged and the previous telemetry stays in place.
func (l *Loop) Run(ctx context.Context) error {
	if l.Period <= 0 {
		return fmt.Errorf("comm period must be positive, got %v", l.Period)
	}
	ticker := time.NewTicker(l.Period)
	defer ticker.Stop()

	monitoring.Logf("comm loop running every %v, receive timeout %v", l.Period, l.ReceiveTimeout)

	for {
		if err := l.Exchange(ctx); err != nil {
			if ctx.Err() != nil {
				monitoring.Logf("comm loop stopped")
				return nil
			}
			monitoring.Logf("comm: %v", err)
		}

		select {
		case <-ctx.Done():
			monitoring.Logf("comm loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Exchange performs one cycle: transmit the current command and, if a valid
// sensor frame comes back in time, store it as the latest telemetry.
func (l *Loop) Exchange(ctx context.Context) error {
	cmd := l.State.Command()

	if err := l.Link.Flush(); err != nil {
		return err
	}
	if _, err := l.Link.Send(l.Codec.EncodeCommand(cmd)); err != nil {
		return fmt.Errorf("send command: %w", err)
	}

	buf, err := l.Link.ReceiveWithTimeout(ctx, l.Codec.SensorFrameSize(), l.ReceiveTimeout)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("receive telemetry: %w", err)
	}

	frame, err := l.Codec.DecodeSensorFrame(buf)
	if err != nil {
		return fmt.Errorf("decode telemetry: %w", err)
	}

	l.State.SetTelemetry(frame)
	for _, fn := range l.observers {
		fn(frame)
	}
	return nil
}
