// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"

	"github.com/relabs-tech/wall_follower/internal/config"
	"github.com/relabs-tech/wall_follower/internal/control"
	"github.com/relabs-tech/wall_follower/internal/protocol"
	"github.com/relabs-tech/wall_follower/internal/sim"
	"github.com/relabs-tech/wall_follower/internal/transport"
)

func transportOptions(cfg *config.Config) transport.Options {
	simCfg := sim.DefaultConfig(cfg.SonarAngles())
	simCfg.Wall = sim.Wall{Y: cfg.SimWallY}
	simCfg.MaxRange = cfg.SimMaxRange
	simCfg.Step = cfg.CommPeriod
	simCfg.AngularScale = cfg.AngularScale
	simCfg.HeadingScale = cfg.HeadingScale

	return transport.Options{
		Driver:       cfg.SerialDriver,
		PortName:     cfg.SerialPort,
		BaudRate:     cfg.SerialBaudRate,
		PollInterval: cfg.SerialPollInterval,
		Sim:          simCfg,
	}
}

// openLink opens the serial link described by cfg and builds the matching
// codec.
func openLink(cfg *config.Config) (*transport.Transport, *protocol.Codec, error) {
	codec, err := protocol.NewCodec(cfg.NumSonar, cfg.AngularScale, cfg.HeadingScale)
	if err != nil {
		return nil, nil, err
	}
	tr, err := transport.Open(transportOptions(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open serial link: %w", err)
	}
	return tr, codec, nil
}

func controlConfig(cfg *config.Config) control.Config {
	return control.Config{
		SensorAngles:  cfg.SonarAngles(),
		SetPoint:      cfg.SetPoint,
		KE:            cfg.KE,
		KS:            cfg.KS,
		MaxTrans:      cfg.MaxTrans,
		MaxAng:        cfg.MaxAng,
		DecayConstant: cfg.DecayConstant,
		Period:        cfg.ControlPeriod,
	}
}
