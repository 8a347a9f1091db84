// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package protocol implements the binary packet format spoken by the robot
// controller over the serial line.
//
// Every field is a signed 16-bit integer, least significant byte first.
//
// Command frame (4 bytes):
//
//	byte 0-1: translational speed in cm/s
//	byte 2-3: angular velocity in rad/s * AngularScale
//
// Sensor frame ((numSonar + 3) * 2 bytes):
//
//	byte 0 .. 2*numSonar-1:          sonar distances in cm, mounting order
//	byte 2*numSonar   .. +1:         x position in cm
//	byte 2*numSonar+2 .. +3:         y position in cm
//	byte 2*numSonar+4 .. +5:         heading in rad * HeadingScale
//
// The robot answers every command frame with exactly one sensor frame.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// CommandFrameSize is the fixed length of an encoded Command.
	CommandFrameSize = 4

	// PoseFields is the number of pose values trailing the sonar distances.
	PoseFields = 3

	DefaultAngularScale = 1000.0
	DefaultHeadingScale = 1000.0
)

var (
	ErrIncompleteFrame = errors.New("incomplete frame")
	ErrLengthMismatch  = errors.New("frame length mismatch")
	ErrSonarCount      = errors.New("sonar count mismatch")
)

// Codec encodes commands and decodes telemetry for a robot with a fixed
// number of sonar sensors.
type Codec struct {
	numSonar     int
	angularScale float64
	headingScale float64
}

// NewCodec returns a codec for numSonar sensors. Non-positive scales fall
// back to the defaults.
func NewCodec(numSonar int, angularScale, headingScale float64) (*Codec, error) {
	if numSonar <= 0 {
		return nil, fmt.Errorf("numSonar must be positive, got %d", numSonar)
	}
	if angularScale <= 0 {
		angularScale = DefaultAngularScale
	}
	if headingScale <= 0 {
		headingScale = DefaultHeadingScale
	}
	return &Codec{
		numSonar:     numSonar,
		angularScale: angularScale,
		headingScale: headingScale,
	}, nil
}

// NumSonar returns the number of distances carried per sensor frame.
func (c *Codec) NumSonar() int { return c.numSonar }

// SensorFrameSize returns the fixed length of an encoded SensorFrame.
func (c *Codec) SensorFrameSize() int {
	return (c.numSonar + PoseFields) * 2
}

// EncodeCommand builds the wire frame for cmd.
func (c *Codec) EncodeCommand(cmd Command) []byte {
	buf := make([]byte, CommandFrameSize)
	putInt16(buf[0:], cmd.Translational)
	putInt16(buf[2:], cmd.Angular*c.angularScale)
	return buf
}

// DecodeCommand is the inverse of EncodeCommand.
func (c *Codec) DecodeCommand(buf []byte) (Command, error) {
	if err := checkLength(buf, CommandFrameSize); err != nil {
		return Command{}, err
	}
	return Command{
		Translational: float64(getInt16(buf[0:])),
		Angular:       float64(getInt16(buf[2:])) / c.angularScale,
	}, nil
}

// EncodeSensorFrame builds the wire frame the robot would send for f.
func (c *Codec) EncodeSensorFrame(f SensorFrame) ([]byte, error) {
	if len(f.Distances) != c.numSonar {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrSonarCount, len(f.Distances), c.numSonar)
	}
	buf := make([]byte, c.SensorFrameSize())
	for i, d := range f.Distances {
		putInt16(buf[2*i:], float64(d))
	}
	off := 2 * c.numSonar
	putInt16(buf[off:], float64(f.Pose.X))
	putInt16(buf[off+2:], float64(f.Pose.Y))
	putInt16(buf[off+4:], f.Pose.Theta*c.headingScale)
	return buf, nil
}

// DecodeSensorFrame parses a complete sensor frame. Nothing is returned
// unless the whole frame is valid.
func (c *Codec) DecodeSensorFrame(buf []byte) (SensorFrame, error) {
	if err := checkLength(buf, c.SensorFrameSize()); err != nil {
		return SensorFrame{}, err
	}
	f := SensorFrame{Distances: make([]int, c.numSonar)}
	for i := range f.Distances {
		f.Distances[i] = int(getInt16(buf[2*i:]))
	}
	off := 2 * c.numSonar
	f.Pose = Pose{
		X:     int(getInt16(buf[off:])),
		Y:     int(getInt16(buf[off+2:])),
		Theta: float64(getInt16(buf[off+4:])) / c.headingScale,
	}
	return f, nil
}

func checkLength(buf []byte, want int) error {
	switch {
	case len(buf) < want:
		return fmt.Errorf("%w: got %d bytes, want %d", ErrIncompleteFrame, len(buf), want)
	case len(buf) > want:
		return fmt.Errorf("%w: got %d bytes, want %d", ErrLengthMismatch, len(buf), want)
	}
	return nil
}

// putInt16 rounds v to the nearest integer and saturates at the int16 range.
func putInt16(buf []byte, v float64) {
	v = math.Round(v)
	if v > math.MaxInt16 {
		v = math.MaxInt16
	} else if v < math.MinInt16 {
		v = math.MinInt16
	}
	binary.LittleEndian.PutUint16(buf, uint16(int16(v)))
}

func getInt16(buf []byte) int16 {
	return int16(binary.LittleEndian.Uint16(buf))
}
