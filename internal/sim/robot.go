// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sim

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/wall_follower/internal/protocol"
)

var errClosed = errors.New("simulated port closed")

// Config describes the simulated robot and its surroundings.
type Config struct {
	// SonarAngles are the sensor headings relative to the robot, in radians.
	SonarAngles []float64
	Wall        Wall
	Start       Pose
	// MaxRange is reported by sensors that see nothing (cm).
	MaxRange float64
	// Step is the time each received command is applied for.
	Step time.Duration

	AngularScale float64
	HeadingScale float64
}

// DefaultConfig places the robot at the origin heading along +x, 40 cm to
// the right of a wall.
func DefaultConfig(sonarAngles []float64) Config {
	return Config{
		SonarAngles: sonarAngles,
		Wall:        Wall{Y: 40},
		MaxRange:    300,
		Step:        250 * time.Millisecond,
	}
}

// Robot is a serial Port backed by a simulated robot. Every command frame
// written advances the simulation by one step and queues a sensor frame
// reply; every tuning frame is answered with protocol.Ack.
type Robot struct {
	cfg   Config
	codec *protocol.Codec

	mu          sync.Mutex
	pose        Pose
	last        protocol.Command
	out         bytes.Buffer
	readTimeout time.Duration
	commands    int
	closed      bool

	ready chan struct{}
	done  chan struct{}
}

// New builds a simulated robot.
func New(cfg Config) (*Robot, error) {
	if len(cfg.SonarAngles) == 0 {
		return nil, fmt.Errorf("simulated robot needs at least one sonar")
	}
	if cfg.MaxRange <= 0 {
		cfg.MaxRange = 300
	}
	if cfg.Step <= 0 {
		cfg.Step = 250 * time.Millisecond
	}
	codec, err := protocol.NewCodec(len(cfg.SonarAngles), cfg.AngularScale, cfg.HeadingScale)
	if err != nil {
		return nil, err
	}
	return &Robot{
		cfg:         cfg,
		codec:       codec,
		pose:        cfg.Start,
		readTimeout: 100 * time.Millisecond,
		ready:       make(chan struct{}, 1),
		done:        make(chan struct{}),
	}, nil
}

// Write consumes exactly one frame.
func (r *Robot) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, errClosed
	}

	switch len(p) {
	case protocol.CommandFrameSize:
		cmd, err := r.codec.DecodeCommand(p)
		if err != nil {
			return 0, err
		}
		r.last = cmd
		r.commands++
		r.pose = r.pose.Advance(cmd.Translational, cmd.Angular, r.cfg.Step.Seconds())
		frame, err := r.codec.EncodeSensorFrame(r.senseLocked())
		if err != nil {
			return 0, err
		}
		r.out.Write(frame)
	case protocol.TuningFrameSize:
		r.out.WriteByte(protocol.Ack)
	default:
		return 0, fmt.Errorf("simulated robot: unexpected %d byte frame", len(p))
	}

	select {
	case r.ready <- struct{}{}:
	default:
	}
	return len(p), nil
}

// Read returns queued reply bytes, waiting up to the read timeout for some to
// appear. An expired wait returns (0, nil).
func (r *Robot) Read(p []byte) (int, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return 0, errClosed
		}
		if r.out.Len() > 0 {
			n, err := r.out.Read(p)
			r.mu.Unlock()
			return n, err
		}
		timeout := r.readTimeout
		r.mu.Unlock()

		timer := time.NewTimer(timeout)
		select {
		case <-r.ready:
			timer.Stop()
		case <-timer.C:
			return 0, nil
		case <-r.done:
			timer.Stop()
			return 0, errClosed
		}
	}
}

func (r *Robot) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.done)
	}
	return nil
}

// SetReadTimeout bounds how long Read waits for data.
func (r *Robot) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("invalid read timeout %v", d)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readTimeout = d
	return nil
}

// ResetInputBuffer drops replies that have not been read yet.
func (r *Robot) ResetInputBuffer() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out.Reset()
	return nil
}

// Pose returns the true world pose.
func (r *Robot) Pose() Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pose
}

// LastCommand returns the most recent command and how many were received.
func (r *Robot) LastCommand() (protocol.Command, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.commands
}

// Sense returns the sensor frame the robot would report right now.
func (r *Robot) Sense() protocol.SensorFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.senseLocked()
}

func (r *Robot) senseLocked() protocol.SensorFrame {
	f := protocol.SensorFrame{
		Distances: make([]int, len(r.cfg.SonarAngles)),
		Pose: protocol.Pose{
			X:     int(math.Round(r.pose.X)),
			Y:     int(math.Round(r.pose.Y)),
			Theta: r.pose.Theta,
		},
	}
	for i, a := range r.cfg.SonarAngles {
		f.Distances[i] = int(math.Round(r.cfg.Wall.Range(r.pose, a, r.cfg.MaxRange)))
	}
	return f
}
