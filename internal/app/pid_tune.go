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
	"github.com/relabs-tech/wall_follower/internal/protocol"
	"github.com/relabs-tech/wall_follower/internal/transport"
)

const ackTimeout = 50 * time.Millisecond

// errEndOfInput ends the tuning session cleanly.
var errEndOfInput = errors.New("end of input")

// RunPIDTune sends timed motion commands with wheel PID gains to the tuning
// firmware, one entry per round of prompts, until the input ends.
func RunPIDTune(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("configuration not loaded")
	}
	tr, err := transport.Open(transportOptions(cfg))
	if err != nil {
		return fmt.Errorf("failed to open serial link: %w", err)
	}
	defer tr.Close()

	return (&tuner{link: tr, ackTimeout: ackTimeout}).run(ctx, in, out)
}

type tuner struct {
	link       comm.Link
	ackTimeout time.Duration
}

func (t *tuner) run(ctx context.Context, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for ctx.Err() == nil {
		tu, err := readTuning(sc, out)
		if errors.Is(err, errEndOfInput) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := t.send(ctx, tu); err != nil {
			fmt.Fprintf(out, "%v\n", err)
			continue
		}
		fmt.Fprintln(out, "acknowledged")
	}
	return nil
}

// send transmits one tuning frame and waits for the acknowledgement byte.
func (t *tuner) send(ctx context.Context, tu protocol.Tuning) error {
	if err := t.link.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if _, err := t.link.Send(protocol.EncodeTuning(tu)); err != nil {
		return fmt.Errorf("send tuning: %w", err)
	}
	reply, err := t.link.ReceiveWithTimeout(ctx, 1, t.ackTimeout)
	if errors.Is(err, transport.ErrTimeout) {
		return errors.New("no acknowledgement from robot")
	}
	if err != nil {
		return fmt.Errorf("receive acknowledgement: %w", err)
	}
	if reply[0] != protocol.Ack {
		return fmt.Errorf("unexpected reply 0x%02x", reply[0])
	}
	return nil
}

func readTuning(sc *bufio.Scanner, out io.Writer) (protocol.Tuning, error) {
	ask := func(prompt string, limit float64) (float64, error) {
		for {
			fmt.Fprint(out, prompt)
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return 0, err
				}
				return 0, errEndOfInput
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(sc.Text()), 64)
			switch {
			case err != nil || math.IsNaN(v):
				fmt.Fprintf(out, "not a number: %q\n", sc.Text())
			case math.Abs(v) > limit:
				fmt.Fprintf(out, "out of range: %v (limit ±%v)\n", v, limit)
			default:
				return v, nil
			}
		}
	}

	var (
		tu  protocol.Tuning
		ms  float64
		err error
	)
	fields := []struct {
		prompt string
		limit  float64
		dst    *float64
	}{
		{"Enter speed in cm/s: ", protocol.MaxTuningSpeed, &tu.Speed},
		{"Enter angular velocity in rad/s: ", protocol.MaxTuningScaled, &tu.Angular},
		{"Enter time in ms: ", protocol.MaxTuningSpeed, &ms},
		{"Enter kP: ", protocol.MaxTuningScaled, &tu.KP},
		{"Enter kI: ", protocol.MaxTuningScaled, &tu.KI},
		{"Enter kD: ", protocol.MaxTuningScaled, &tu.KD},
	}
	for _, f := range fields {
		if *f.dst, err = ask(f.prompt, f.limit); err != nil {
			return protocol.Tuning{}, err
		}
	}
	tu.Duration = time.Duration(ms) * time.Millisecond
	return tu, nil
}
