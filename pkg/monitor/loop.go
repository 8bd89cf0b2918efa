// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package monitor runs the measurement loop: read the sensor, rate the
// reading, show it on the indicator and forward it to the reporter.
package monitor

import (
	"context"
	"net"
	"time"

	"github.com/Thermoquad/ndirstat/pkg/indicator"
	"github.com/Thermoquad/ndirstat/pkg/mhz19"
	"github.com/Thermoquad/ndirstat/pkg/reporter"
	log "github.com/sirupsen/logrus"
)

// Sensor is the part of mhz19.Sensor the loop needs
type Sensor interface {
	ReadCO2() (mhz19.Reading, error)
}

// Reporter is the part of reporter.Reporter the loop needs
type Reporter interface {
	Connected() bool
	TryServer(host string, port uint16) reporter.Status
	TrySendDataPacket(p reporter.DataPacketOut) reporter.Status
	IP() net.IP
}

// Defaults
const (
	DefaultInterval = 5 * time.Second
	DefaultRetries  = 2
	DefaultBackoff  = 200 * time.Millisecond
)

// CycleResult is the outcome of one control cycle
type CycleResult struct {
	Reading   mhz19.Reading
	Err       error // last read error, nil on success
	Attempts  int
	Rating    Rating
	Color     indicator.Color
	Anomalies []mhz19.ValidationError
	Reported  bool            // a send was attempted
	Report    reporter.Status // valid when Reported
	Duration  time.Duration
}

// OK reports whether the cycle produced a reading
func (r CycleResult) OK() bool {
	return r.Err == nil
}

// Loop is the sequential control loop. It is not safe for concurrent use.
type Loop struct {
	sensor     Sensor
	indicator  indicator.Indicator
	reporter   Reporter
	metrics    *Metrics
	stats      *mhz19.Statistics
	log        *log.Entry
	onCycle    func(CycleResult)
	sleep      func(context.Context, time.Duration) error
	interval   time.Duration
	retries    int
	backoff    time.Duration
	rangeMax   int
	thresholds Thresholds
	serverHost string
	serverPort uint16
}

// LoopOption configures a Loop
type LoopOption func(*Loop)

// WithIndicator sets the status indicator
func WithIndicator(ind indicator.Indicator) LoopOption {
	return func(l *Loop) { l.indicator = ind }
}

// WithReporter forwards every reading. When host is not empty a dropped
// connection is reopened at the start of the next report.
func WithReporter(r Reporter, host string, port uint16) LoopOption {
	return func(l *Loop) {
		l.reporter = r
		l.serverHost = host
		l.serverPort = port
	}
}

// WithMetrics exports results to Prometheus
func WithMetrics(m *Metrics) LoopOption {
	return func(l *Loop) { l.metrics = m }
}

// WithStatistics records exchanges into s
func WithStatistics(s *mhz19.Statistics) LoopOption {
	return func(l *Loop) { l.stats = s }
}

// WithLogger sets the log entry
func WithLogger(e *log.Entry) LoopOption {
	return func(l *Loop) { l.log = e }
}

// WithInterval sets the time between cycle starts in Run
func WithInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithRetry sets how many extra attempts a transient read failure gets and
// the first backoff delay, doubled after each attempt
func WithRetry(retries int, backoff time.Duration) LoopOption {
	return func(l *Loop) {
		if retries >= 0 {
			l.retries = retries
		}
		if backoff >= 0 {
			l.backoff = backoff
		}
	}
}

// WithRange sets the detection range used to validate readings
func WithRange(ppm int) LoopOption {
	return func(l *Loop) {
		if ppm > 0 {
			l.rangeMax = ppm
		}
	}
}

// WithThresholds sets the rating thresholds
func WithThresholds(t Thresholds) LoopOption {
	return func(l *Loop) {
		if t.Valid() {
			l.thresholds = t
		}
	}
}

// OnCycle registers fn to receive every cycle result
func OnCycle(fn func(CycleResult)) LoopOption {
	return func(l *Loop) { l.onCycle = fn }
}

// NewLoop creates a loop around sensor
func NewLoop(sensor Sensor, opts ...LoopOption) *Loop {
	l := &Loop{
		sensor:     sensor,
		stats:      mhz19.NewStatistics(),
		log:        log.WithField("component", "monitor"),
		sleep:      sleepContext,
		interval:   DefaultInterval,
		retries:    DefaultRetries,
		backoff:    DefaultBackoff,
		rangeMax:   mhz19.DefaultRange,
		thresholds: DefaultThresholds,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Statistics returns the exchange statistics
func (l *Loop) Statistics() *mhz19.Statistics {
	return l.stats
}

// Cycle performs one read, indicate, report pass
func (l *Loop) Cycle() CycleResult {
	return l.CycleContext(context.Background())
}

// CycleContext is Cycle with a context that cuts the retry backoff short.
// A cycle cancelled while backing off ends with the last read error.
func (l *Loop) CycleContext(ctx context.Context) CycleResult {
	start := time.Now()
	res := CycleResult{Rating: RatingUnknown}

	res.Reading, res.Attempts, res.Err = l.read(ctx)
	if res.Err == nil {
		res.Anomalies = mhz19.ValidateReading(res.Reading, l.rangeMax)
		l.stats.Update(&res.Reading, nil, res.Anomalies)
		res.Rating = l.thresholds.Rate(res.Reading.PPM)
	}
	res.Color = res.Rating.Color()

	if l.indicator != nil {
		if err := indicator.Apply(l.indicator, res.Color); err != nil {
			l.log.WithError(err).WithField("color", res.Color).Warn("indicator update failed")
		}
	}

	fields := log.Fields{"attempt": res.Attempts, "rating": res.Rating}
	if res.Err != nil {
		l.log.WithFields(fields).WithField("code", mhz19.CodeOf(res.Err)).WithError(res.Err).Warn("CO2 read failed")
	} else {
		fields["ppm"] = res.Reading.PPM
		entry := l.log.WithFields(fields)
		for _, a := range res.Anomalies {
			entry.Warn(a.Message)
		}
		entry.Debug("CO2 reading")
	}

	if res.Err == nil && l.reporter != nil {
		res.Reported = true
		res.Report = l.report(res)
	}

	res.Duration = time.Since(start)
	if l.metrics != nil {
		l.metrics.ObserveCycle(res)
	}
	if l.onCycle != nil {
		l.onCycle(res)
	}
	return res
}

// read calls the sensor until it succeeds, fails permanently or runs out of
// attempts. Every attempt is counted as an exchange.
func (l *Loop) read(ctx context.Context) (mhz19.Reading, int, error) {
	delay := l.backoff
	for attempt := 1; ; attempt++ {
		reading, err := l.sensor.ReadCO2()
		if l.metrics != nil {
			l.metrics.ObserveExchange(err)
		}
		if err == nil {
			return reading, attempt, nil
		}
		l.stats.Update(nil, err, nil)

		if !mhz19.IsTransient(err) || attempt > l.retries {
			return reading, attempt, err
		}
		l.log.WithError(err).WithField("attempt", attempt).Debug("retrying CO2 read")
		if delay > 0 {
			if l.sleep(ctx, delay) != nil {
				return reading, attempt, err
			}
			delay *= 2
		}
	}
}

func (l *Loop) report(res CycleResult) reporter.Status {
	if !l.reporter.Connected() {
		if l.serverHost == "" {
			return reporter.StatusNotConnected
		}
		if st := l.reporter.TryServer(l.serverHost, l.serverPort); st != reporter.StatusOK {
			l.log.WithField("status", st).Debug("server reconnect failed")
			return st
		}
	}

	st := l.reporter.TrySendDataPacket(reporter.DataPacketOut{
		IPAddr: l.reporter.IP(),
		CO2PPM: res.Reading.PPM,
		Rating: uint8(res.Rating),
	})
	if st != reporter.StatusOK {
		l.log.WithField("status", st).Warn("report failed")
	}
	return st
}

// Run cycles every interval until ctx is done. Failed cycles never stop it.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		l.CycleContext(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// sleepContext waits for d or until ctx is done, whichever comes first
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
