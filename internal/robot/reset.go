// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package robot

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// ResetController pulses the robot controller's reset line low for pulse and
// then waits settle for its firmware to boot. pinName is a periph pin name
// such as "GPIO4".
func ResetController(pinName string, pulse, settle time.Duration) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}

	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return fmt.Errorf("reset pin %q not found", pinName)
	}

	log.Printf("resetting robot controller via %s", pin.Name())
	return pulseReset(pin, pulse, settle, time.Sleep)
}

func pulseReset(pin gpio.PinOut, pulse, settle time.Duration, sleep func(time.Duration)) error {
	if err := pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("reset pin low: %w", err)
	}
	sleep(pulse)
	if err := pin.Out(gpio.High); err != nil {
		return fmt.Errorf("reset pin high: %w", err)
	}
	sleep(settle)
	return nil
}
