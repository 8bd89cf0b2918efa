// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mhz19

import (
	"fmt"
	"time"
)

// Reading is one decoded concentration measurement
type Reading struct {
	PPM         uint16
	Temperature int  // °C, sensor internal
	Status      byte // raw status byte
	Timestamp   time.Time
}

// InRange reports whether the value lies within the detection range
func (r Reading) InRange(rangeMax int) bool {
	return int(r.PPM) <= rangeMax
}

// String implements fmt.Stringer
func (r Reading) String() string {
	return fmt.Sprintf("%d ppm", r.PPM)
}
