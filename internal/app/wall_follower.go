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
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/wall_follower/internal/comm"
	"github.com/relabs-tech/wall_follower/internal/config"
	"github.com/relabs-tech/wall_follower/internal/control"
	"github.com/relabs-tech/wall_follower/internal/protocol"
	"github.com/relabs-tech/wall_follower/internal/robot"
	"github.com/relabs-tech/wall_follower/internal/storage"
	"github.com/relabs-tech/wall_follower/internal/transport"
)

// RunWallFollower drives the robot along a wall until ctx is cancelled. With
// prompt set, target speeds are also read from stdin.
func RunWallFollower(ctx context.Context, prompt bool) error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("configuration not loaded")
	}

	if cfg.ResetPin != "" && cfg.SerialDriver != transport.DriverSim {
		if err := robot.ResetController(cfg.ResetPin, cfg.ResetPulse, cfg.ResetSettle); err != nil {
			return fmt.Errorf("controller reset: %w", err)
		}
	}

	tr, codec, err := openLink(cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	state := robot.NewState(cfg.MaxTrans)
	ctrl, err := control.New(controlConfig(cfg))
	if err != nil {
		return err
	}
	loop := &comm.Loop{
		Link:           tr,
		Codec:          codec,
		State:          state,
		Period:         cfg.CommPeriod,
		ReceiveTimeout: cfg.ReceiveTimeout,
	}

	status := &liveStatus{}
	ctrl.OnStatus(status.set)

	if cfg.RecorderPath != "" {
		rec, session, err := startRecording(cfg, loop, ctrl)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.EndSession(session); err != nil {
				log.Printf("recorder: %v", err)
			}
			rec.Close()
		}()
	}

	if cfg.MQTTBroker != "" {
		b, err := connectBridge(cfg, state)
		if err != nil {
			log.Printf("mqtt: bridge disabled: %v", err)
		} else {
			defer b.close()
			loop.OnFrame(b.publishFrame)
			ctrl.OnStatus(b.publishStatus)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				log.Printf("%s: %v", name, err)
			}
		}()
	}

	run("comm", func() error { return loop.Run(ctx) })
	run("control", func() error { return ctrl.Run(ctx, state) })

	if cfg.WebServerPort > 0 {
		web := &webServer{state: state, status: status, push: cfg.WSPushInterval}
		run("web", func() error { return serveWeb(ctx, cfg.WebServerPort, web) })
	}
	if cfg.DisplayEnabled {
		run("display", func() error { return runDisplay(ctx, cfg.DisplayUpdateInterval, state, status) })
	}

	if prompt {
		// not part of wg: a pending stdin read cannot be interrupted
		go func() {
			if err := promptSpeeds(os.Stdin, os.Stdout, state); err != nil {
				log.Printf("stdin: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Println("shutting down")
	wg.Wait()

	stopRobot(loop, state, cfg.ReceiveTimeout)
	return nil
}

// stopRobot makes sure the last command the robot saw is a stop.
func stopRobot(loop *comm.Loop, state *robot.State, timeout time.Duration) {
	control.Stop(state)
	ctx, cancel := context.WithTimeout(context.Background(), 2*timeout)
	defer cancel()
	if err := loop.Exchange(ctx); err != nil {
		log.Printf("final stop: %v", err)
	}
}

func startRecording(cfg *config.Config, loop *comm.Loop, ctrl *control.Controller) (*storage.Recorder, string, error) {
	rec, err := storage.Open(cfg.RecorderPath)
	if err != nil {
		return nil, "", err
	}
	session, err := rec.StartSession(fmt.Sprintf("driver=%s", cfg.SerialDriver), ctrl.Config())
	if err != nil {
		rec.Close()
		return nil, "", err
	}
	log.Printf("recorder: session %s", session)

	loop.OnFrame(func(f protocol.SensorFrame) {
		if err := rec.RecordFrame(session, f, time.Now()); err != nil {
			log.Printf("recorder: %v", err)
		}
	})
	ctrl.OnStatus(func(st control.Status) {
		if err := rec.RecordCycle(session, st); err != nil {
			log.Printf("recorder: %v", err)
		}
	})
	return rec, session, nil
}

// promptSpeeds reads target speeds, one per line, until r is exhausted.
func promptSpeeds(r io.Reader, w io.Writer, state *robot.State) error {
	scanner := bufio.NewScanner(r)
	fmt.Fprint(w, "target speed (cm/s): ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text != "" {
			v, err := applyTargetSpeed(state, []byte(text))
			if err != nil {
				fmt.Fprintf(w, "%v\n", err)
			} else {
				fmt.Fprintf(w, "target speed %.1f cm/s\n", v)
			}
		}
		fmt.Fprint(w, "target speed (cm/s): ")
	}
	return scanner.Err()
}
