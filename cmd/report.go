// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/ndirstat/pkg/mhz19"
	"github.com/Thermoquad/ndirstat/pkg/monitor"
	"github.com/Thermoquad/ndirstat/pkg/reporter"
	"github.com/spf13/cobra"
)

var (
	reportCount int
	reportPPM   uint16
	reportRead  bool
)

var reportTestCmd = &cobra.Command{
	Use:   "report_test",
	Short: "Test the network reporter by sending data packets",
	Long: `Join the network, connect to the collecting server and send test packets.

The packet carries this host's IP address, a CO2 value and its rating:
  {"ipaddr": "192.168.1.20", "co2_ppm": 800, "rating": 0}

The value comes from --ppm, or from the sensor with --read.

This is useful for verifying:
  - The network link is up (or WPS is available)
  - The server accepts connections on the configured transport
  - Packets are encoded with the configured codec

Exit codes:
  0 - All packets sent
  1 - One or more sends failed
  2 - Network or server connection error`,
	RunE: runReportTest,
}

func init() {
	rootCmd.AddCommand(reportTestCmd)
	addReporterFlags(reportTestCmd)
	reportTestCmd.Flags().IntVar(&reportCount, "count", 3, "Number of packets to send")
	reportTestCmd.Flags().Uint16Var(&reportPPM, "ppm", 800, "CO2 value to send")
	reportTestCmd.Flags().BoolVar(&reportRead, "read", false, "Read the value from the sensor instead of --ppm")
}

// addReporterFlags registers the flags shared by commands that report
func addReporterFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "Collecting server host")
	cmd.Flags().Uint16("server-port", 5000, "Collecting server port")
	cmd.Flags().String("transport", "tcp", "Server transport (tcp, ws, wss, mqtt)")
	cmd.Flags().String("codec", "json", "Packet encoding (json, cbor)")
	cmd.Flags().String("ssid", "", "Network to join (password from NDIRSTAT_WIFI_PASSWORD)")
	cmd.Flags().Bool("wps", false, "Join the network by push-button setup")
}

// newReporter builds a reporter from the configuration
func newReporter(c ReporterConfig) (*reporter.Reporter, error) {
	codec, err := reporter.CodecByName(c.Codec)
	if err != nil {
		return nil, err
	}

	var dialer reporter.Dialer
	switch strings.ToLower(c.Transport) {
	case "", "tcp":
		dialer = reporter.NewTCPDialer(codec, 5*time.Second)
	case "ws", "wss":
		dialer = &reporter.WebSocketDialer{
			Path:          c.Path,
			TLS:           strings.EqualFold(c.Transport, "wss"),
			SkipSSLVerify: cfg.Bridge.NoSSLVerify,
			Username:      c.Username,
			Password:      os.Getenv("NDIRSTAT_REPORTER_PASSWORD"),
		}
	case "mqtt":
		dialer = &reporter.MQTTDialer{
			Topic:    c.Topic,
			Username: c.Username,
			Password: os.Getenv("NDIRSTAT_REPORTER_PASSWORD"),
		}
	default:
		return nil, fmt.Errorf("unknown transport %q (use tcp, ws, wss or mqtt)", c.Transport)
	}

	return reporter.New(
		reporter.WithLink(&reporter.HostLink{Interface: c.Interface}),
		reporter.WithDialer(dialer),
		reporter.WithCodec(codec),
		reporter.WithRateLimit(c.RateLimit, 1),
	), nil
}

// connectReporter joins the network and opens the server connection
func connectReporter(r *reporter.Reporter, c ReporterConfig) reporter.Status {
	var st reporter.Status
	if c.WPS {
		st = r.TryConnectWPS()
	} else {
		password := ""
		if c.SSID != "" {
			var err error
			password, err = GetPassword(envWiFiPassword, fmt.Sprintf("Password for %s", c.SSID))
			if err != nil {
				return reporter.StatusNoLink
			}
		}
		st = r.TryConnect(c.SSID, password)
	}
	if st != reporter.StatusOK {
		return st
	}
	if c.Host == "" {
		return reporter.StatusNotConnected
	}
	return r.TryServer(c.Host, c.Port)
}

func runReportTest(cmd *cobra.Command, args []string) error {
	rcfg := cfg.Reporter
	if reportCount < 1 {
		return fmt.Errorf("--count must be at least 1, got %d", reportCount)
	}
	if rcfg.Host == "" {
		fmt.Fprintf(os.Stderr, "Connection error: --server is required\n")
		os.Exit(2)
	}

	rep, err := newReporter(rcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	code := sendReportPackets(rep, rcfg)
	rep.Close()
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

// sendReportPackets runs the report test on an open reporter and returns
// the exit code. The caller owns rep.
func sendReportPackets(rep *reporter.Reporter, rcfg ReporterConfig) int {
	fmt.Printf("ndirstat - Report Test\n")
	fmt.Printf("Server: %s:%d (%s, %s)\n", rcfg.Host, rcfg.Port, rcfg.Transport, rcfg.Codec)

	if st := connectReporter(rep, rcfg); st != reporter.StatusOK {
		fmt.Fprintf(os.Stderr, "Connection error: %s (%d)\n", st, st)
		return 2
	}
	rep.PrintIP(os.Stdout)
	rep.PrintMAC(os.Stdout)
	fmt.Printf("Count: %d packets\n\n", reportCount)

	thresholds := monitor.Thresholds{Moderate: cfg.Monitor.Moderate, Poor: cfg.Monitor.Poor}
	if !thresholds.Valid() {
		thresholds = monitor.DefaultThresholds
	}

	ppm := reportPPM
	if reportRead {
		value, code, err := readReportPPM(func() (*mhz19.Sensor, string, error) { return OpenSensor(nil) })
		if err != nil {
			if code == 2 {
				fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			} else {
				fmt.Fprintf(os.Stderr, "Sensor read failed: %v\n", err)
			}
			return code
		}
		ppm = value
	}

	sent := 0
	for i := 1; i <= reportCount; i++ {
		packet := reporter.DataPacketOut{
			IPAddr: rep.IP(),
			CO2PPM: ppm,
			Rating: uint8(thresholds.Rate(ppm)),
		}

		start := time.Now()
		st := rep.TrySendDataPacket(packet)
		if st == reporter.StatusOK {
			fmt.Printf("Packet %d/%d: sent %d ppm (%s) in %v\n", i, reportCount, ppm,
				thresholds.Rate(ppm), time.Since(start).Round(time.Millisecond))
			sent++
		} else {
			fmt.Printf("Packet %d/%d: FAILED: %s (%d)\n", i, reportCount, st, st)
		}

		if i < reportCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Report statistics ---\n")
	fmt.Printf("%d packets, %d sent, %.0f%% loss\n",
		reportCount, sent, float64(reportCount-sent)/float64(reportCount)*100)

	if sent < reportCount {
		return 1
	}
	return 0
}

// readReportPPM takes one reading from a freshly opened sensor and closes it.
// The int is the exit code to use on error: 2 when the sensor could not be
// opened, 1 when the read failed.
func readReportPPM(open func() (*mhz19.Sensor, string, error)) (uint16, int, error) {
	sensor, _, err := open()
	if err != nil {
		return 0, 2, err
	}
	defer sensor.Close()

	reading, err := sensor.ReadCO2()
	if err != nil {
		return 0, 1, err
	}
	return reading.PPM, 0, nil
}
