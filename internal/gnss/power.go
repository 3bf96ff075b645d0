// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gnss

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PowerSwitch gates the receiver's supply.
type PowerSwitch interface {
	On() error
	Off() error
}

// GPIOPower drives an enable line high while the receiver is in use.
type GPIOPower struct {
	pin gpio.PinIO
}

func NewGPIOPower(name string) (*GPIOPower, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gnss power: periph host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gnss power: pin %q not found", name)
	}
	return &GPIOPower{pin: pin}, nil
}

func (p *GPIOPower) On() error  { return p.pin.Out(gpio.High) }
func (p *GPIOPower) Off() error { return p.pin.Out(gpio.Low) }
