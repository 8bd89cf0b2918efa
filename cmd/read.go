// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/ndirstat/pkg/mhz19"
	"github.com/spf13/cobra"
)

var (
	readCount    int
	readInterval time.Duration
	readTrace    bool
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read the CO2 concentration from the sensor",
	Long: `Send the gas concentration command and print the sensor's answer.

Each reading performs exactly one exchange: the command frame
FF 01 86 00 00 00 00 00 79 is written and the 9-byte response is validated
(start byte, echoed command, checksum) before the concentration is decoded.
No retries are made, so every failure is reported as it happened.

Exit codes:
  0 - All readings succeeded
  1 - One or more exchanges failed (timeout, rejected, checksum)
  2 - Connection error`,
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().IntVarP(&readCount, "count", "c", 1, "Number of readings to take")
	readCmd.Flags().DurationVar(&readInterval, "interval", time.Second, "Delay between readings")
	readCmd.Flags().BoolVar(&readTrace, "trace", false, "Print raw TX/RX frames")
}

func runRead(cmd *cobra.Command, args []string) error {
	var trace mhz19.TraceFunc
	if readTrace {
		trace = printExchange
	}

	sensor, connInfo, err := OpenSensor(trace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer sensor.Close()

	fmt.Printf("ndirstat - Read CO2\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %v\n\n", sensor.ReadTimeout())

	failures := 0
	for i := 1; i <= readCount; i++ {
		reading, err := sensor.ReadCO2()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Reading %d/%d: FAILED (code %d): %v\n", i, readCount, mhz19.CodeOf(err), err)
			failures++
		} else {
			fmt.Printf("Reading %d/%d: %s\n", i, readCount, mhz19.FormatReading(reading))
			for _, anomaly := range mhz19.ValidateReading(reading, cfg.Monitor.Range) {
				fmt.Printf("  warning: %s\n", anomaly.Message)
			}
		}

		if i < readCount {
			time.Sleep(readInterval)
		}
	}

	if failures > 0 {
		os.Exit(1)
	}
	return nil
}

// printExchange prints both frames of one exchange
func printExchange(tx, rx []byte) {
	var txFrame mhz19.Frame
	copy(txFrame[:], tx)
	fmt.Println(mhz19.FormatFrame(txFrame))

	switch {
	case rx == nil:
	case len(rx) < mhz19.FrameLength:
		fmt.Printf("RX [%s] (%d of %d bytes)\n", mhz19.HexDump(rx), len(rx), mhz19.FrameLength)
	default:
		var rxFrame mhz19.Frame
		copy(rxFrame[:], rx)
		fmt.Println(mhz19.FormatFrame(rxFrame))
	}
}
