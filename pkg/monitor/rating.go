// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import "github.com/Thermoquad/ndirstat/pkg/indicator"

// Rating classifies a CO2 concentration. The value is sent as the packet's
// rating byte.
type Rating uint8

// Ratings
const (
	RatingGood     Rating = 0
	RatingModerate Rating = 1
	RatingPoor     Rating = 2
	RatingUnknown  Rating = 0xFF
)

// String returns the rating name
func (r Rating) String() string {
	switch r {
	case RatingGood:
		return "good"
	case RatingModerate:
		return "moderate"
	case RatingPoor:
		return "poor"
	default:
		return "unknown"
	}
}

// Color returns the indicator state for the rating. Unknown turns it off.
func (r Rating) Color() indicator.Color {
	switch r {
	case RatingGood:
		return indicator.Green
	case RatingModerate:
		return indicator.Blue
	case RatingPoor:
		return indicator.Red
	default:
		return indicator.Off
	}
}

// Thresholds are the lowest concentrations rated moderate and poor
type Thresholds struct {
	Moderate uint16
	Poor     uint16
}

// DefaultThresholds follow common indoor air guidance
var DefaultThresholds = Thresholds{Moderate: 1000, Poor: 2000}

// Rate classifies ppm
func (t Thresholds) Rate(ppm uint16) Rating {
	switch {
	case ppm < t.Moderate:
		return RatingGood
	case ppm < t.Poor:
		return RatingModerate
	default:
		return RatingPoor
	}
}

// Valid reports whether the thresholds are ordered
func (t Thresholds) Valid() bool {
	return t.Moderate > 0 && t.Moderate <= t.Poor
}
