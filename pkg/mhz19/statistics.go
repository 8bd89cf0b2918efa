// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mhz19

import (
	"fmt"
	"time"
)

// Statistics tracks exchange results and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalExchanges uint64
	ValidReadings  uint64
	NotInitialized uint64
	WriteFailures  uint64
	ReadFailures   uint64
	Rejected       uint64
	ChecksumErrors uint64
	OtherErrors    uint64
	Anomalies      uint64
	OutOfRange     uint64
	InvalidTemp    uint64

	// Concentration
	LastPPM uint16
	MinPPM  uint16
	MaxPPM  uint16
	sumPPM  uint64

	// Rates (calculated)
	ExchangeRate float64 // exchanges/min
	ErrorRate    float64 // errors/min
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records the outcome of one exchange
func (s *Statistics) Update(reading *Reading, err error, anomalies []ValidationError) {
	s.TotalExchanges++
	s.LastUpdateTime = time.Now()

	if err != nil {
		switch CodeOf(err) {
		case CodeSerialNotInitialized:
			s.NotInitialized++
		case CodeWriteFailure:
			s.WriteFailures++
		case CodeReadFailure:
			s.ReadFailures++
		case CodeCommandRejected:
			s.Rejected++
		case CodeChecksumMismatch:
			s.ChecksumErrors++
		default:
			s.OtherErrors++
		}
		return
	}

	if reading == nil {
		return
	}

	for _, a := range anomalies {
		switch a.Type {
		case AnomalyOutOfRange:
			s.OutOfRange++
		case AnomalyInvalidTemp:
			s.InvalidTemp++
		}
	}
	if len(anomalies) > 0 {
		s.Anomalies++
	}

	if s.ValidReadings == 0 || reading.PPM < s.MinPPM {
		s.MinPPM = reading.PPM
	}
	if reading.PPM > s.MaxPPM {
		s.MaxPPM = reading.PPM
	}
	s.LastPPM = reading.PPM
	s.sumPPM += uint64(reading.PPM)
	s.ValidReadings++
}

// Errors returns the number of failed exchanges
func (s *Statistics) Errors() uint64 {
	return s.NotInitialized + s.WriteFailures + s.ReadFailures + s.Rejected + s.ChecksumErrors + s.OtherErrors
}

// MeanPPM returns the average of all valid readings
func (s *Statistics) MeanPPM() float64 {
	if s.ValidReadings == 0 {
		return 0
	}
	return float64(s.sumPPM) / float64(s.ValidReadings)
}

// CalculateRates calculates exchange and error rates per minute
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Minutes()
	if elapsed > 0 {
		s.ExchangeRate = float64(s.TotalExchanges) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, errorPercent float64
	if s.TotalExchanges > 0 {
		validPercent = float64(s.ValidReadings) * 100.0 / float64(s.TotalExchanges)
		errorPercent = float64(s.Errors()) * 100.0 / float64(s.TotalExchanges)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Exchanges:       %8d\n", s.TotalExchanges)
	result += fmt.Sprintf("Valid Readings:  %8d (%.1f%%)\n", s.ValidReadings, validPercent)

	if s.Errors() > 0 {
		result += fmt.Sprintf("Errors:          %8d (%.1f%%)\n", s.Errors(), errorPercent)
		if s.NotInitialized > 0 {
			result += fmt.Sprintf("  Not Initialized:  %5d\n", s.NotInitialized)
		}
		if s.WriteFailures > 0 {
			result += fmt.Sprintf("  Write Failures:   %5d\n", s.WriteFailures)
		}
		if s.ReadFailures > 0 {
			result += fmt.Sprintf("  Read Failures:    %5d\n", s.ReadFailures)
		}
		if s.Rejected > 0 {
			result += fmt.Sprintf("  Rejected:         %5d\n", s.Rejected)
		}
		if s.ChecksumErrors > 0 {
			result += fmt.Sprintf("  Checksum Errors:  %5d\n", s.ChecksumErrors)
		}
		if s.OtherErrors > 0 {
			result += fmt.Sprintf("  Other:            %5d\n", s.OtherErrors)
		}
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalous:       %8d\n", s.Anomalies)
		if s.OutOfRange > 0 {
			result += fmt.Sprintf("  Out of Range:     %5d\n", s.OutOfRange)
		}
		if s.InvalidTemp > 0 {
			result += fmt.Sprintf("  Invalid Temp:     %5d\n", s.InvalidTemp)
		}
	}
	if s.ValidReadings > 0 {
		result += fmt.Sprintf("CO2 last/min/max: %d / %d / %d ppm (mean %.0f)\n", s.LastPPM, s.MinPPM, s.MaxPPM, s.MeanPPM())
	}

	result += fmt.Sprintf("Exchange Rate:   %8.1f /min\n", s.ExchangeRate)
	result += fmt.Sprintf("Error Rate:      %8.1f /min\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
