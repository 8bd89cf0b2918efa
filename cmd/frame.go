// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/Thermoquad/ndirstat/pkg/mhz19"
	"github.com/spf13/cobra"
)

var frameCmd = &cobra.Command{
	Use:   "frame [HEX...]",
	Short: "Build or check MH-Z19B frames offline",
	Long: `Without arguments, print the command frames this tool sends.

With arguments, decode the given hex bytes (spaces optional) as a frame and
check its checksum. Nothing is sent to a sensor.

Examples:
  ndirstat frame
  ndirstat frame FF 86 02 90 00 00 00 00 E8

Exit codes:
  0 - Frame(s) valid
  1 - Invalid frame or checksum mismatch`,
	// No connection or config needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runFrame,
}

func init() {
	rootCmd.AddCommand(frameCmd)
}

func runFrame(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		printCommandFrames()
		return nil
	}

	data, err := hex.DecodeString(strings.Join(args, ""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid hex: %v\n", err)
		os.Exit(1)
	}

	decoder := mhz19.NewFrameDecoder()
	frames := 0
	failed := false
	for _, b := range data {
		frame, err := decoder.DecodeByte(b)
		if err != nil {
			fmt.Printf("[ERROR] %v\n", err)
			failed = true
			continue
		}
		if frame != nil {
			fmt.Println(mhz19.FormatFrame(*frame))
			frames++
		}
	}

	if rest := decoder.Buffered(); len(rest) > 0 {
		fmt.Printf("[INCOMPLETE] [%s] (%d of %d bytes)\n", mhz19.HexDump(rest), len(rest), mhz19.FrameLength)
		failed = true
	}
	if skipped := decoder.Skipped(); skipped > 0 {
		fmt.Printf("(skipped %d bytes before a start byte)\n", skipped)
	}
	if frames == 0 || failed {
		os.Exit(1)
	}
	return nil
}

func printCommandFrames() {
	span, _ := mhz19.NewSpanCalibrationCommand(2000)
	detect, _ := mhz19.NewDetectionRangeCommand(mhz19.Range5000)

	commands := []struct {
		label string
		frame mhz19.CommandFrame
	}{
		{"read CO2", mhz19.NewReadCO2Command()},
		{"zero calibration", mhz19.NewZeroCalibrationCommand()},
		{"span calibration 2000", span},
		{"ABC on", mhz19.NewABCCommand(true)},
		{"ABC off", mhz19.NewABCCommand(false)},
		{"detection range 5000", detect},
	}
	for _, c := range commands {
		fmt.Printf("%-22s %s\n", c.label, mhz19.HexDump(c.frame.Bytes()))
	}
}
