// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/wall_follower/internal/comm"
	"github.com/relabs-tech/wall_follower/internal/config"
	"github.com/relabs-tech/wall_follower/internal/control"
	"github.com/relabs-tech/wall_follower/internal/protocol"
)

// RunMotorConsole lets an operator type "translational angular" pairs and
// prints the sensor frame the robot answers with. "q" or end of input sends
// a stop and exits.
func RunMotorConsole(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("configuration not loaded")
	}
	tr, codec, err := openLink(cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	mc := &motorConsole{
		link:     tr,
		codec:    codec,
		timeout:  cfg.ReceiveTimeout,
		maxTrans: cfg.MaxTrans,
		maxAng:   cfg.MaxAng,
	}
	return mc.run(ctx, in, out)
}

type motorConsole struct {
	link     comm.Link
	codec    *protocol.Codec
	timeout  time.Duration
	maxTrans float64
	maxAng   float64
}

func (m *motorConsole) run(ctx context.Context, in io.Reader, out io.Writer) error {
	defer func() {
		if _, err := m.exchange(context.Background(), protocol.Command{}); err != nil {
			fmt.Fprintf(out, "stop: %v\n", err)
		}
	}()

	sc := bufio.NewScanner(in)
	fmt.Fprint(out, "speed (cm/s) angular (rad/s): ")
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		text := strings.TrimSpace(sc.Text())
		if text == "q" {
			return nil
		}
		if text != "" {
			m.handle(ctx, text, out)
		}
		fmt.Fprint(out, "speed (cm/s) angular (rad/s): ")
	}
	return sc.Err()
}

func (m *motorConsole) handle(ctx context.Context, text string, out io.Writer) {
	cmd, err := parseMotorCommand(text)
	if err != nil {
		fmt.Fprintf(out, "%v\n", err)
		return
	}
	cmd = m.limit(cmd)

	f, err := m.exchange(ctx, cmd)
	if err != nil {
		fmt.Fprintf(out, "%v\n", err)
		return
	}
	fmt.Fprintf(out, "sent v=%.0f w=%.3f\n", cmd.Translational, cmd.Angular)
	fmt.Fprint(out, formatFrame(f))
}

// limit applies the same bounds the follower uses.
func (m *motorConsole) limit(cmd protocol.Command) protocol.Command {
	trans, ang := control.Clamp(cmd.Translational, cmd.Angular, m.maxAng)
	trans = math.Max(-m.maxTrans, math.Min(m.maxTrans, trans))
	return protocol.Command{Translational: trans, Angular: ang}
}

func (m *motorConsole) exchange(ctx context.Context, cmd protocol.Command) (protocol.SensorFrame, error) {
	if err := m.link.Flush(); err != nil {
		return protocol.SensorFrame{}, fmt.Errorf("flush: %w", err)
	}
	if _, err := m.link.Send(m.codec.EncodeCommand(cmd)); err != nil {
		return protocol.SensorFrame{}, fmt.Errorf("send command: %w", err)
	}
	buf, err := m.link.ReceiveWithTimeout(ctx, m.codec.SensorFrameSize(), m.timeout)
	if err != nil {
		return protocol.SensorFrame{}, fmt.Errorf("receive telemetry: %w", err)
	}
	return m.codec.DecodeSensorFrame(buf)
}

func parseMotorCommand(text string) (protocol.Command, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return protocol.Command{}, fmt.Errorf("expected \"speed angular\", got %q", text)
	}
	trans, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return protocol.Command{}, fmt.Errorf("invalid speed %q", fields[0])
	}
	ang, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return protocol.Command{}, fmt.Errorf("invalid angular velocity %q", fields[1])
	}
	return protocol.Command{Translational: trans, Angular: ang}, nil
}

func formatFrame(f protocol.SensorFrame) string {
	var b strings.Builder
	for i, d := range f.Distances {
		fmt.Fprintf(&b, "sonar %d: %d\n", i, d)
	}
	fmt.Fprintf(&b, "x: %d\ny: %d\ntheta: %.3f\n", f.Pose.X, f.Pose.Y, f.Pose.Theta)
	return b.String()
}
