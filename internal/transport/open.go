// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"fmt"
	"log"
	"time"

	jserial "github.com/jacobsa/go-serial/serial"
	"go.bug.st/serial"

	"github.com/relabs-tech/wall_follower/internal/sim"
)

const (
	DriverBugst   = "bugst"
	DriverJacobsa = "jacobsa"
	DriverSim     = "sim"
)

// readTimeouter is implemented by ports whose reads can be bounded.
type readTimeouter interface {
	SetReadTimeout(time.Duration) error
}

// Options selects and configures the serial driver. The line is always raw
// 8N1 with no flow control.
type Options struct {
	Driver   string
	PortName string
	BaudRate int
	// PollInterval bounds how long a single driver read may block. The
	// jacobsa driver rounds it up to a multiple of 100ms.
	PollInterval time.Duration
	// Sim configures the simulated robot used by DriverSim.
	Sim sim.Config
}

// Open opens the configured serial port, discards anything already buffered
// on the line and wraps it in a Transport.
func Open(opts Options) (*Transport, error) {
	if opts.Driver == DriverSim {
		return openSim(opts)
	}
	if opts.PortName == "" {
		return nil, fmt.Errorf("no serial port configured")
	}
	if opts.BaudRate <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", opts.BaudRate)
	}

	var (
		port Port
		err  error
	)
	switch opts.Driver {
	case DriverBugst, "":
		port, err = openBugst(opts)
	case DriverJacobsa:
		port, err = openJacobsa(opts)
	default:
		return nil, fmt.Errorf("unknown serial driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("serial port %s opened at %d baud (%s)", opts.PortName, opts.BaudRate, driverName(opts.Driver))
	return New(port), nil
}

func driverName(d string) string {
	if d == "" {
		return DriverBugst
	}
	return d
}

func bugstMode(opts Options) *serial.Mode {
	return &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func openBugst(opts Options) (Port, error) {
	p, err := serial.Open(opts.PortName, bugstMode(opts))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.PortName, err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, fmt.Errorf("flush %s: %w", opts.PortName, err)
	}
	if err := p.ResetOutputBuffer(); err != nil {
		p.Close()
		return nil, fmt.Errorf("flush %s: %w", opts.PortName, err)
	}
	if err := setPollInterval(p, opts.PollInterval); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", opts.PortName, err)
	}
	return p, nil
}

func setPollInterval(p Port, d time.Duration) error {
	rt, ok := p.(readTimeouter)
	if !ok || d <= 0 {
		return nil
	}
	return rt.SetReadTimeout(d)
}

func openSim(opts Options) (*Transport, error) {
	robot, err := sim.New(opts.Sim)
	if err != nil {
		return nil, fmt.Errorf("simulated robot: %w", err)
	}
	if err := setPollInterval(robot, opts.PollInterval); err != nil {
		return nil, err
	}
	log.Printf("using simulated robot (%d sonars, wall at y=%.0f cm)", len(opts.Sim.SonarAngles), opts.Sim.Wall.Y)
	return New(robot), nil
}

// jacobsaOptions maps Options onto a non-blocking termios read: VMIN 0 and
// VTIME derived from the poll interval.
func jacobsaOptions(opts Options) jserial.OpenOptions {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ms := (poll.Milliseconds() + 99) / 100 * 100
	return jserial.OpenOptions{
		PortName:              opts.PortName,
		BaudRate:              uint(opts.BaudRate),
		DataBits:              8,
		StopBits:              1,
		ParityMode:            jserial.PARITY_NONE,
		MinimumReadSize:       0,
		InterCharacterTimeout: uint(ms),
	}
}

func openJacobsa(opts Options) (Port, error) {
	p, err := jserial.Open(jacobsaOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.PortName, err)
	}
	return p, nil
}
