// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Thermoquad/ndirstat/pkg/mhz19"
	"github.com/spf13/cobra"
)

var calibrateYes bool

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Calibrate the sensor zero point or span",
	Long: `Send a calibration command to the sensor.

Calibration commands are not answered by the sensor; success only means the
frame was written.

  zero       Take the current concentration as the 400 ppm baseline. Keep the
             sensor in fresh outdoor air for at least 20 minutes first.
  span PPM   Take the current concentration as PPM. Run zero calibration
             first and use a reference gas.

Exit codes:
  0 - Command written
  1 - Write failed or invalid argument
  2 - Connection error`,
}

var calibrateZeroCmd = &cobra.Command{
	Use:   "zero",
	Short: "Zero-point calibration (400 ppm baseline)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm("Zero-point calibration overwrites the sensor baseline.") {
			return nil
		}
		return withSensor(func(s *mhz19.Sensor) error {
			return s.CalibrateZero()
		}, "Zero-point calibration sent")
	},
}

var calibrateSpanCmd = &cobra.Command{
	Use:   "span PPM",
	Short: "Span-point calibration against a reference concentration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ppm, err := parsePPM(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid concentration: %v\n", err)
			os.Exit(1)
		}
		if !confirm(fmt.Sprintf("Span calibration will treat the current air as %d ppm.", ppm)) {
			return nil
		}
		return withSensor(func(s *mhz19.Sensor) error {
			return s.CalibrateSpan(ppm)
		}, fmt.Sprintf("Span calibration to %d ppm sent", ppm))
	},
}

var abcCmd = &cobra.Command{
	Use:       "abc on|off",
	Short:     "Enable or disable automatic baseline correction",
	Long:      "Automatic baseline correction recalibrates the zero point every 24 hours\nassuming the sensor sees fresh air at least once a day.",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled := args[0] == "on"
		return withSensor(func(s *mhz19.Sensor) error {
			return s.SetABC(enabled)
		}, fmt.Sprintf("Automatic baseline correction %s", args[0]))
	},
}

var rangeCmd = &cobra.Command{
	Use:   "range PPM",
	Short: "Set the detection range (2000, 5000 or 10000 ppm)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ppm, err := parsePPM(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid range: %v\n", err)
			os.Exit(1)
		}
		return withSensor(func(s *mhz19.Sensor) error {
			return s.SetDetectionRange(ppm)
		}, fmt.Sprintf("Detection range set to %d ppm", ppm))
	},
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(abcCmd)
	rootCmd.AddCommand(rangeCmd)
	calibrateCmd.AddCommand(calibrateZeroCmd)
	calibrateCmd.AddCommand(calibrateSpanCmd)
	calibrateCmd.PersistentFlags().BoolVarP(&calibrateYes, "yes", "y", false, "Do not ask for confirmation")
}

func parsePPM(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// confirm asks the user before a command that changes calibration
func confirm(warning string) bool {
	if calibrateYes {
		return true
	}
	fmt.Printf("%s Continue? [y/N] ", warning)
	var answer string
	fmt.Scanln(&answer)
	if answer != "y" && answer != "Y" {
		fmt.Println("Aborted")
		return false
	}
	return true
}

// withSensor opens the sensor, runs fn and maps the result to an exit code
func withSensor(fn func(*mhz19.Sensor) error, success string) error {
	sensor, connInfo, err := OpenSensor(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer sensor.Close()

	fmt.Printf("Connection: %s\n", connInfo)
	if err := fn(sensor); err != nil {
		sensor.Close()
		fmt.Fprintf(os.Stderr, "FAILED (code %d): %v\n", mhz19.CodeOf(err), err)
		os.Exit(1)
	}
	fmt.Println(success)
	return nil
}
