// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package protocol

import (
	"math"
	"time"
)

const (
	// TuningFrameSize is the length of an encoded Tuning frame.
	TuningFrameSize = 12

	// TuningScale converts angular velocity and PID gains to fixed point.
	TuningScale = 10000.0

	// MaxTuningSpeed bounds |Speed| (cm/s) and the duration in ms.
	MaxTuningSpeed = math.MaxInt16
	// MaxTuningScaled bounds |Angular| and the gains, which travel scaled
	// by TuningScale.
	MaxTuningScaled = math.MaxInt16 / TuningScale

	// Ack is the single byte the tuning firmware replies with.
	Ack byte = 'a'
)

// Tuning is a timed motion command carrying wheel PID gains, understood by
// the PID tuning firmware.
//
// Frame layout (int16 LE each): speed, angular*10000, duration ms,
// kP*10000, kI*10000, kD*10000.
type Tuning struct {
	Speed    float64 // cm/s
	Angular  float64 // rad/s
	Duration time.Duration
	KP       float64
	KI       float64
	KD       float64
}

// EncodeTuning builds the 12 byte tuning frame.
func EncodeTuning(t Tuning) []byte {
	buf := make([]byte, TuningFrameSize)
	putInt16(buf[0:], t.Speed)
	putInt16(buf[2:], t.Angular*TuningScale)
	putInt16(buf[4:], float64(t.Duration.Milliseconds()))
	putInt16(buf[6:], t.KP*TuningScale)
	putInt16(buf[8:], t.KI*TuningScale)
	putInt16(buf[10:], t.KD*TuningScale)
	return buf
}

// DecodeTuning is the inverse of EncodeTuning.
func DecodeTuning(buf []byte) (Tuning, error) {
	if err := checkLength(buf, TuningFrameSize); err != nil {
		return Tuning{}, err
	}
	return Tuning{
		Speed:    float64(getInt16(buf[0:])),
		Angular:  float64(getInt16(buf[2:])) / TuningScale,
		Duration: time.Duration(getInt16(buf[4:])) * time.Millisecond,
		KP:       float64(getInt16(buf[6:])) / TuningScale,
		KI:       float64(getInt16(buf[8:])) / TuningScale,
		KD:       float64(getInt16(buf[10:])) / TuningScale,
	}, nil
}
