// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/ndirstat/pkg/indicator"
	"github.com/Thermoquad/ndirstat/pkg/mhz19"
	"github.com/Thermoquad/ndirstat/pkg/monitor"
	"github.com/Thermoquad/ndirstat/pkg/reporter"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Continuously read, rate, indicate and report CO2",
	Long: `Run the measurement loop until interrupted.

Each cycle reads the sensor, rates the concentration and shows it on the
tri-color indicator:
  green  below the moderate threshold (default 1000 ppm)
  blue   below the poor threshold (default 2000 ppm)
  red    at or above the poor threshold
  off    the reading failed

Read timeouts, rejected responses and checksum errors are retried with
exponential backoff before the cycle is counted as failed. The loop never
stops on a failed cycle.

With --report, every reading is sent to the collecting server. A dropped
server connection is reopened on the next cycle.

With --metrics-addr, Prometheus metrics are served on /metrics.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	flags := monitorCmd.Flags()
	flags.Duration("interval", monitor.DefaultInterval, "Time between readings")
	flags.Int("retries", monitor.DefaultRetries, "Extra attempts after a transient read failure")
	flags.Duration("backoff", monitor.DefaultBackoff, "First retry delay, doubled after each attempt")
	flags.Int("range", mhz19.DefaultRange, "Sensor detection range in ppm, for validation")
	flags.Duration("stats-interval", time.Minute, "Statistics summary interval (text mode)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9119)")
	flags.Bool("tui", true, "Use terminal UI (false for text mode)")
	flags.String("led-green", "", "GPIO line of the green LED")
	flags.String("led-red", "", "GPIO line of the red LED")
	flags.String("led-blue", "", "GPIO line of the blue LED")
	flags.Bool("report", false, "Send every reading to the collecting server")
	addReporterFlags(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	sensor, connInfo, err := OpenSensor(nil)
	if err != nil {
		return err
	}
	defer sensor.Close()

	led, err := openIndicator(cfg.Indicator)
	if err != nil {
		return err
	}
	defer led.Clear()

	metrics := monitor.NewMetrics()
	if cfg.Monitor.MetricsAddr != "" {
		srv := startMetricsServer(cfg.Monitor.MetricsAddr, metrics)
		defer srv.Close()
	}

	opts := []monitor.LoopOption{
		monitor.WithIndicator(led),
		monitor.WithMetrics(metrics),
		monitor.WithInterval(cfg.Monitor.Interval),
		monitor.WithRetry(cfg.Monitor.Retries, cfg.Monitor.Backoff),
		monitor.WithRange(cfg.Monitor.Range),
		monitor.WithThresholds(monitor.Thresholds{Moderate: cfg.Monitor.Moderate, Poor: cfg.Monitor.Poor}),
	}

	reporting := ""
	if cfg.Reporter.Enabled {
		rep, err := newReporter(cfg.Reporter)
		if err != nil {
			return err
		}
		defer rep.Close()
		if st := connectReporter(rep, cfg.Reporter); st != reporter.StatusOK {
			log.WithField("status", st).Warn("reporter not connected, retrying every cycle")
		}
		opts = append(opts, monitor.WithReporter(rep, cfg.Reporter.Host, cfg.Reporter.Port))
		reporting = fmt.Sprintf("%s://%s:%d", cfg.Reporter.Transport, cfg.Reporter.Host, cfg.Reporter.Port)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Monitor.TUI {
		return runMonitorTUI(ctx, sensor, connInfo, reporting, opts)
	}
	return runMonitorText(ctx, sensor, connInfo, reporting, opts)
}

// openIndicator drives GPIO lines when any are configured. Otherwise the
// indicator only tracks its color for display.
func openIndicator(c IndicatorConfig) (*indicator.Led, error) {
	if c.Green == "" && c.Red == "" && c.Blue == "" {
		return indicator.NewLed(nil, nil, nil), nil
	}
	led, err := indicator.OpenGPIOLed(c.Green, c.Red, c.Blue)
	if err != nil {
		return nil, fmt.Errorf("failed to open indicator: %w", err)
	}
	return led, nil
}

func startMetricsServer(addr string, m *monitor.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	return srv
}

// runMonitorTUI runs the loop in the background and feeds results to the TUI
func runMonitorTUI(ctx context.Context, sensor monitor.Sensor, connInfo, reporting string, opts []monitor.LoopOption) error {
	// Keep log lines from tearing the screen; a log file still gets them
	if w, ok := logCloser.(io.Writer); ok {
		log.SetOutput(w)
	} else {
		log.SetOutput(io.Discard)
	}

	m := initialModel(connInfo, reporting, cfg.Monitor.Interval, cfg.Monitor.Range)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	var loop *monitor.Loop
	loop = monitor.NewLoop(sensor, append(opts, monitor.OnCycle(func(r monitor.CycleResult) {
		// Statistics are copied here, on the loop goroutine
		p.Send(cycleMsg{result: r, stats: *loop.Statistics()})
	}))...)

	loopCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(loopCtx)
	}()

	_, err := p.Run()
	stop()
	<-done

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runMonitorText runs the loop in the foreground, printing each cycle
func runMonitorText(ctx context.Context, sensor monitor.Sensor, connInfo, reporting string, opts []monitor.LoopOption) error {
	fmt.Printf("ndirstat - CO2 Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Interval: %v, statistics every %v\n", cfg.Monitor.Interval, cfg.Monitor.StatsInterval)
	if reporting != "" {
		fmt.Printf("Reporting to: %s\n", reporting)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	lastStats := time.Now()
	var loop *monitor.Loop
	loop = monitor.NewLoop(sensor, append(opts, monitor.OnCycle(func(r monitor.CycleResult) {
		printCycle(r)
		if cfg.Monitor.StatsInterval > 0 && time.Since(lastStats) >= cfg.Monitor.StatsInterval {
			fmt.Println()
			fmt.Print(loop.Statistics().String())
			fmt.Println()
			lastStats = time.Now()
		}
	}))...)

	err := loop.Run(ctx)

	fmt.Println()
	fmt.Print(loop.Statistics().String())
	return err
}

// ANSI color for each indicator state
var ansiColors = map[indicator.Color]string{
	indicator.Off:   "\033[1;90m",
	indicator.Red:   "\033[1;31m",
	indicator.Green: "\033[1;32m",
	indicator.Blue:  "\033[1;34m",
}

// printCycle prints one cycle result in highlighted format
func printCycle(r monitor.CycleResult) {
	timestamp := time.Now().Format("15:04:05.000")

	if !r.OK() {
		fmt.Printf("[%s] \033[1;31mREAD FAILED:\033[0m %v (code %d, %d attempts)\n",
			timestamp, r.Err, mhz19.CodeOf(r.Err), r.Attempts)
		return
	}

	fmt.Printf("[%s] %s%4d ppm %-8s\033[0m temp=%d°C",
		timestamp, ansiColors[r.Color], r.Reading.PPM, r.Rating, r.Reading.Temperature)
	if r.Attempts > 1 {
		fmt.Printf(" (%d attempts)", r.Attempts)
	}
	if r.Reported && r.Report != reporter.StatusOK {
		fmt.Printf(" \033[1;33mreport: %s\033[0m", r.Report)
	}
	fmt.Println()

	for _, a := range r.Anomalies {
		fmt.Printf("  \033[1;33mWARNING:\033[0m %s\n", a.Message)
	}
}
