// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package indicator drives a tri-color status LED over three output lines.
package indicator

import (
	"fmt"
	"sync"
)

// Color is one of the four mutually exclusive indicator states
type Color int

const (
	Off Color = iota
	Red
	Green
	Blue
)

// String returns the color name
func (c Color) String() string {
	switch c {
	case Off:
		return "off"
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	default:
		return fmt.Sprintf("color(%d)", int(c))
	}
}

// Indicator is the state-setting interface used by the control loop
type Indicator interface {
	SetOnlyRed() error
	SetOnlyGreen() error
	SetOnlyBlue() error
	Clear() error
}

// Line is a single digital output
type Line interface {
	Out(high bool) error
}

// Led drives three independent lines so exactly one (or none) is lit.
// Nil lines are skipped, which gives a virtual indicator on hosts without GPIO.
type Led struct {
	mu    sync.Mutex
	green Line
	red   Line
	blue  Line
	color Color
}

// NewLed creates an indicator from its green, red and blue lines
func NewLed(green, red, blue Line) *Led {
	return &Led{green: green, red: red, blue: blue}
}

// SetOnlyRed lights the red line only
func (l *Led) SetOnlyRed() error { return l.Set(Red) }

// SetOnlyGreen lights the green line only
func (l *Led) SetOnlyGreen() error { return l.Set(Green) }

// SetOnlyBlue lights the blue line only
func (l *Led) SetOnlyBlue() error { return l.Set(Blue) }

// Clear turns all lines off
func (l *Led) Clear() error { return l.Set(Off) }

// Set switches to color c. Lines are turned off before the new one is lit so
// two colors are never on at once.
func (l *Led) Set(c Color) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lines := []struct {
		color Color
		line  Line
	}{
		{Red, l.red},
		{Green, l.green},
		{Blue, l.blue},
	}

	for _, ln := range lines {
		if ln.color == c || ln.line == nil {
			continue
		}
		if err := ln.line.Out(false); err != nil {
			return fmt.Errorf("indicator: %s off: %w", ln.color, err)
		}
	}
	for _, ln := range lines {
		if ln.color != c || ln.line == nil {
			continue
		}
		if err := ln.line.Out(true); err != nil {
			return fmt.Errorf("indicator: %s on: %w", ln.color, err)
		}
	}

	l.color = c
	return nil
}

// Color returns the currently active color
func (l *Led) Color() Color {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.color
}

// Apply drives ind to color c through its four operations
func Apply(ind Indicator, c Color) error {
	switch c {
	case Red:
		return ind.SetOnlyRed()
	case Green:
		return ind.SetOnlyGreen()
	case Blue:
		return ind.SetOnlyBlue()
	default:
		return ind.Clear()
	}
}
