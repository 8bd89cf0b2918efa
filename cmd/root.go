// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"io"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logCloser  io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "ndirstat",
	Short: "MH-Z19B CO2 sensor tool",
	Long: `ndirstat - A CLI tool for reading and monitoring MH-Z19B NDIR CO2 sensors.

Talks to the sensor over its 9600 baud UART using the 9-byte command/response
protocol, rates each reading, drives a tri-color indicator and forwards the
measurement to a collecting server.

Connection modes:
  Serial:    --port /dev/ttyUSB0
  WebSocket: --url ws://host/path [--username user]

Settings can also come from a config file (--config, or ndirstat.yaml in the
working directory) and from NDIRSTAT_* environment variables, e.g.
NDIRSTAT_SERIAL_PORT or NDIRSTAT_REPORTER_HOST.

For WebSocket authentication, the password is read from the
NDIRSTAT_BRIDGE_PASSWORD environment variable, or prompted interactively if
not set. The WiFi password for --ssid is read from NDIRSTAT_WIFI_PASSWORD the
same way. Password flags are intentionally not provided to avoid leaking
credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: initCommand,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()

	// Serial connection flags
	flags.StringP("port", "p", "", "Serial port device")
	flags.IntP("baud", "b", 9600, "Baud rate (serial only, the sensor is fixed at 9600)")
	flags.Int("rx", 0, "Receive pin number (descriptive on hosts with a device path)")
	flags.Int("tx", 0, "Transmit pin number (descriptive on hosts with a device path)")
	flags.Duration("timeout", 0, "Sensor response timeout (default 1s)")

	// WebSocket connection flags
	flags.StringP("url", "u", "", "WebSocket UART bridge URL (ws:// or wss://)")
	flags.String("username", "", "Username for HTTP Basic auth")
	flags.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Configuration and logging
	flags.StringVar(&configPath, "config", "", "Config file (yaml, toml or json)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Also write logs to this file, rotated by size")
}

// initCommand loads configuration and logging for the command being run
func initCommand(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	cfg = c

	closer, err := setupLogging(cfg.Log)
	if err != nil {
		return err
	}
	logCloser = closer
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
