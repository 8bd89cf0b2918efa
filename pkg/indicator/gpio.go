// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package indicator

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOLine drives a host GPIO pin
type GPIOLine struct {
	pin gpio.PinOut
}

// Out implements Line
func (g *GPIOLine) Out(high bool) error {
	return g.pin.Out(gpio.Level(high))
}

// OpenGPIOLine looks up a pin by name (e.g. "GPIO17") and drives it low
func OpenGPIOLine(name string) (*GPIOLine, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("indicator: no GPIO pin named %q", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("indicator: %s: %w", name, err)
	}
	return &GPIOLine{pin: p}, nil
}

// OpenGPIOLed initializes the host drivers and opens the three pins.
// An empty name leaves that line unconnected.
func OpenGPIOLed(green, red, blue string) (*Led, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("indicator: host init: %w", err)
	}

	open := func(name string) (Line, error) {
		if name == "" {
			return nil, nil
		}
		return OpenGPIOLine(name)
	}

	g, err := open(green)
	if err != nil {
		return nil, err
	}
	r, err := open(red)
	if err != nil {
		return nil, err
	}
	b, err := open(blue)
	if err != nil {
		return nil, err
	}
	return NewLed(g, r, b), nil
}
