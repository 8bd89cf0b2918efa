// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/ndirstat/pkg/mhz19"
	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Find serial ports with an MH-Z19B attached",
	Long: `Probe every serial port on this host for an MH-Z19B sensor.

Each port is opened at 9600 baud 8N1 and sent one gas concentration command.
A port answering with a valid response frame has a sensor attached. Ports
that are busy or answer with garbage are listed with the reason.

Examples:
  ndirstat discovery
  ndirstat discovery --timeout 500ms

Exit codes:
  0 - At least one sensor found
  1 - No sensor found
  2 - Ports could not be listed`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list serial ports: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("ndirstat - Sensor Discovery\n")
	fmt.Printf("Probing %d ports (timeout %v each)...\n\n", len(ports), cfg.Serial.Timeout)

	found := 0
	for _, name := range ports {
		reading, err := probePort(name)
		if err != nil {
			fmt.Printf("  %-20s -\n", name)
			fmt.Printf("    %v\n", err)
			continue
		}
		fmt.Printf("  %-20s MH-Z19B  %s\n", name, mhz19.FormatReading(reading))
		found++
	}

	fmt.Printf("\nFound %d sensor(s)\n", found)
	if found == 0 {
		os.Exit(1)
	}
	return nil
}

// probePort performs one read on name
func probePort(name string) (mhz19.Reading, error) {
	opener := mhz19.OpenerFunc(func(rx, tx mhz19.Pin, baud int) (mhz19.Transport, error) {
		return OpenSerialConnection(name, baud)
	})
	sensor := mhz19.NewSensor(
		mhz19.WithOpener(opener),
		mhz19.WithReadTimeout(cfg.Serial.Timeout),
	)
	if err := sensor.Initialize(0, 0); err != nil {
		return mhz19.Reading{}, err
	}
	defer sensor.Close()
	return sensor.ReadCO2()
}
