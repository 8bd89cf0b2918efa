// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mhz19

import "fmt"

// AnomalyType represents different kinds of implausible readings
type AnomalyType int

const (
	AnomalyOutOfRange AnomalyType = iota
	AnomalyInvalidTemp
)

// Operating temperature range from the datasheet
const (
	minOperatingTemp = -10
	maxOperatingTemp = 60
)

// ValidationError describes an implausible but well-formed reading
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateReading checks a reading against the detection range and the
// sensor's operating conditions. Returns an empty slice for a plausible reading.
func ValidateReading(r Reading, rangeMax int) []ValidationError {
	errors := []ValidationError{}

	if !r.InRange(rangeMax) {
		errors = append(errors, ValidationError{
			Type:    AnomalyOutOfRange,
			Message: fmt.Sprintf("CO2 out of range (%d ppm, max %d)", r.PPM, rangeMax),
			Details: map[string]interface{}{"ppm": r.PPM, "max": rangeMax},
		})
	}

	if r.Temperature < minOperatingTemp || r.Temperature > maxOperatingTemp {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidTemp,
			Message: fmt.Sprintf("Sensor temperature out of range (%d°C, valid: %d to %d°C)", r.Temperature, minOperatingTemp, maxOperatingTemp),
			Details: map[string]interface{}{"value": r.Temperature, "min": minOperatingTemp, "max": maxOperatingTemp},
		})
	}

	return errors
}
