// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/ndirstat/pkg/indicator"
	"github.com/Thermoquad/ndirstat/pkg/mhz19"
	"github.com/Thermoquad/ndirstat/pkg/reporter"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Fakes
// ============================================================

type sensorResult struct {
	ppm uint16
	err error
}

type fakeSensor struct {
	results []sensorResult
	calls   int
}

func (f *fakeSensor) ReadCO2() (mhz19.Reading, error) {
	r := f.results[len(f.results)-1]
	if f.calls < len(f.results) {
		r = f.results[f.calls]
	}
	f.calls++
	if r.err != nil {
		return mhz19.Reading{}, r.err
	}
	return mhz19.Reading{PPM: r.ppm, Temperature: 22, Timestamp: time.Now()}, nil
}

func ok(ppm uint16) sensorResult { return sensorResult{ppm: ppm} }
func fail(code mhz19.Code) sensorResult {
	return sensorResult{err: &mhz19.ProtocolError{Code: code, Op: "read"}}
}

type fakeIndicator struct {
	calls []string
}

func (f *fakeIndicator) SetOnlyRed() error   { f.calls = append(f.calls, "red"); return nil }
func (f *fakeIndicator) SetOnlyGreen() error { f.calls = append(f.calls, "green"); return nil }
func (f *fakeIndicator) SetOnlyBlue() error  { f.calls = append(f.calls, "blue"); return nil }
func (f *fakeIndicator) Clear() error        { f.calls = append(f.calls, "off"); return nil }

func (f *fakeIndicator) last() string {
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

type fakeReporter struct {
	connected bool
	serverSt  reporter.Status
	sendSt    reporter.Status
	servers   int
	packets   []reporter.DataPacketOut
}

func (f *fakeReporter) Connected() bool { return f.connected }

func (f *fakeReporter) TryServer(host string, port uint16) reporter.Status {
	f.servers++
	if f.serverSt == reporter.StatusOK {
		f.connected = true
	}
	return f.serverSt
}

func (f *fakeReporter) TrySendDataPacket(p reporter.DataPacketOut) reporter.Status {
	f.packets = append(f.packets, p)
	return f.sendSt
}

func (f *fakeReporter) IP() net.IP { return net.IPv4(192, 168, 4, 2) }

func quietLogger() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return log.NewEntry(l)
}

func newTestLoop(s Sensor, opts ...LoopOption) (*Loop, *[]time.Duration) {
	var sleeps []time.Duration
	opts = append([]LoopOption{WithLogger(quietLogger())}, opts...)
	l := NewLoop(s, opts...)
	l.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return l, &sleeps
}

// ============================================================
// Rating
// ============================================================

func TestRate(t *testing.T) {
	tests := []struct {
		ppm  uint16
		want Rating
	}{
		{0, RatingGood},
		{999, RatingGood},
		{1000, RatingModerate},
		{1999, RatingModerate},
		{2000, RatingPoor},
		{65535, RatingPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultThresholds.Rate(tt.ppm), "ppm=%d", tt.ppm)
	}
}

func TestRatingColor(t *testing.T) {
	assert.Equal(t, indicator.Green, RatingGood.Color())
	assert.Equal(t, indicator.Blue, RatingModerate.Color())
	assert.Equal(t, indicator.Red, RatingPoor.Color())
	assert.Equal(t, indicator.Off, RatingUnknown.Color())
	assert.Equal(t, "unknown", RatingUnknown.String())
}

func TestThresholdsValid(t *testing.T) {
	assert.True(t, DefaultThresholds.Valid())
	assert.False(t, Thresholds{Moderate: 2000, Poor: 1000}.Valid())
	assert.False(t, Thresholds{}.Valid())
}

// ============================================================
// Cycle
// ============================================================

func TestCycleSuccess(t *testing.T) {
	ind := &fakeIndicator{}
	rep := &fakeReporter{connected: true}
	l, sleeps := newTestLoop(&fakeSensor{results: []sensorResult{ok(1500)}},
		WithIndicator(ind), WithReporter(rep, "", 0))

	res := l.Cycle()
	require.True(t, res.OK())
	assert.Equal(t, uint16(1500), res.Reading.PPM)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, RatingModerate, res.Rating)
	assert.Equal(t, indicator.Blue, res.Color)
	assert.Equal(t, "blue", ind.last())
	assert.Empty(t, *sleeps)

	require.True(t, res.Reported)
	assert.Equal(t, reporter.StatusOK, res.Report)
	require.Len(t, rep.packets, 1)
	assert.Equal(t, uint16(1500), rep.packets[0].CO2PPM)
	assert.Equal(t, uint8(RatingModerate), rep.packets[0].Rating)
	assert.True(t, rep.packets[0].IPAddr.Equal(net.IPv4(192, 168, 4, 2)))

	assert.Equal(t, uint64(1), l.Statistics().ValidReadings)
}

func TestCycleRetriesTransient(t *testing.T) {
	s := &fakeSensor{results: []sensorResult{
		fail(mhz19.CodeReadFailure),
		fail(mhz19.CodeChecksumMismatch),
		ok(600),
	}}
	l, sleeps := newTestLoop(s, WithRetry(2, 10*time.Millisecond))

	res := l.Cycle()
	require.True(t, res.OK())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, RatingGood, res.Rating)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *sleeps)

	stats := l.Statistics()
	assert.Equal(t, uint64(3), stats.TotalExchanges)
	assert.Equal(t, uint64(1), stats.ReadFailures)
	assert.Equal(t, uint64(1), stats.ChecksumErrors)
}

func TestCycleGivesUpAfterRetries(t *testing.T) {
	ind := &fakeIndicator{}
	rep := &fakeReporter{connected: true}
	s := &fakeSensor{results: []sensorResult{fail(mhz19.CodeCommandRejected)}}
	l, _ := newTestLoop(s, WithRetry(1, 0), WithIndicator(ind), WithReporter(rep, "", 0))

	res := l.Cycle()
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, mhz19.ErrCommandRejected)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, RatingUnknown, res.Rating)
	assert.Equal(t, "off", ind.last())
	assert.False(t, res.Reported)
	assert.Empty(t, rep.packets)
}

func TestCycleNoRetryOnPermanent(t *testing.T) {
	for _, code := range []mhz19.Code{mhz19.CodeSerialNotInitialized, mhz19.CodeWriteFailure} {
		s := &fakeSensor{results: []sensorResult{fail(code), ok(400)}}
		l, sleeps := newTestLoop(s, WithRetry(3, time.Millisecond))

		res := l.Cycle()
		assert.Equal(t, code, mhz19.CodeOf(res.Err), code.String())
		assert.Equal(t, 1, res.Attempts, code.String())
		assert.Equal(t, 1, s.calls, code.String())
		assert.Empty(t, *sleeps, code.String())
	}
}

func TestCycleAnomalies(t *testing.T) {
	l, _ := newTestLoop(&fakeSensor{results: []sensorResult{ok(6000)}}, WithRange(mhz19.Range5000))

	res := l.Cycle()
	require.True(t, res.OK())
	require.Len(t, res.Anomalies, 1)
	assert.Equal(t, mhz19.AnomalyOutOfRange, res.Anomalies[0].Type)
	assert.Equal(t, RatingPoor, res.Rating)
	assert.Equal(t, uint64(1), l.Statistics().OutOfRange)
}

func TestCycleReconnects(t *testing.T) {
	rep := &fakeReporter{}
	l, _ := newTestLoop(&fakeSensor{results: []sensorResult{ok(800)}}, WithReporter(rep, "collector", 5000))

	res := l.Cycle()
	assert.Equal(t, reporter.StatusOK, res.Report)
	assert.Equal(t, 1, rep.servers)
	assert.Len(t, rep.packets, 1)

	l.Cycle()
	assert.Equal(t, 1, rep.servers)
}

func TestCycleReconnectFails(t *testing.T) {
	rep := &fakeReporter{serverSt: reporter.StatusConnectFailed}
	l, _ := newTestLoop(&fakeSensor{results: []sensorResult{ok(800)}}, WithReporter(rep, "collector", 5000))

	res := l.Cycle()
	assert.True(t, res.OK())
	assert.Equal(t, reporter.StatusConnectFailed, res.Report)
	assert.Empty(t, rep.packets)
}

func TestCycleNotConnectedWithoutServer(t *testing.T) {
	rep := &fakeReporter{}
	l, _ := newTestLoop(&fakeSensor{results: []sensorResult{ok(800)}}, WithReporter(rep, "", 0))

	res := l.Cycle()
	assert.Equal(t, reporter.StatusNotConnected, res.Report)
	assert.Equal(t, 0, rep.servers)
}

func TestCycleSendFailureKeepsLooping(t *testing.T) {
	rep := &fakeReporter{connected: true, sendSt: reporter.StatusSendFailed}
	l, _ := newTestLoop(&fakeSensor{results: []sensorResult{ok(800)}}, WithReporter(rep, "", 0))

	for i := 0; i < 3; i++ {
		res := l.Cycle()
		assert.True(t, res.OK())
		assert.Equal(t, reporter.StatusSendFailed, res.Report)
	}
}

func TestOnCycle(t *testing.T) {
	var got []CycleResult
	l, _ := newTestLoop(&fakeSensor{results: []sensorResult{ok(450)}}, OnCycle(func(r CycleResult) {
		got = append(got, r)
	}))
	l.Cycle()
	require.Len(t, got, 1)
	assert.Equal(t, uint16(450), got[0].Reading.PPM)
}

// ============================================================
// Run
// ============================================================

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cycles := 0
	s := &fakeSensor{results: []sensorResult{fail(mhz19.CodeReadFailure), ok(500)}}
	l, _ := newTestLoop(s, WithInterval(time.Millisecond), WithRetry(0, 0), OnCycle(func(CycleResult) {
		cycles++
		if cycles == 3 {
			cancel()
		}
	}))

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Equal(t, 3, cycles)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeSensor{results: []sensorResult{ok(500)}}
	l, _ := newTestLoop(s)
	assert.NoError(t, l.Run(ctx))
	assert.Equal(t, 0, s.calls)
}

func TestCycleContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeSensor{results: []sensorResult{fail(mhz19.CodeReadFailure)}}
	l := NewLoop(s, WithLogger(quietLogger()), WithRetry(3, time.Hour))

	start := time.Now()
	res := l.CycleContext(ctx)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, res.OK())
	assert.Equal(t, mhz19.CodeReadFailure, mhz19.CodeOf(res.Err))
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, s.calls)
}

func TestRunStopsDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &fakeSensor{results: []sensorResult{fail(mhz19.CodeChecksumMismatch)}}
	l := NewLoop(s, WithLogger(quietLogger()), WithRetry(5, time.Hour))

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run waited out the retry backoff")
	}
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

// ============================================================
// Metrics
// ============================================================

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	rep := &fakeReporter{connected: true}
	s := &fakeSensor{results: []sensorResult{fail(mhz19.CodeReadFailure), ok(1234)}}
	l, _ := newTestLoop(s, WithMetrics(m), WithRetry(1, 0), WithReporter(rep, "", 0))

	l.Cycle()

	assert.Equal(t, 1234.0, testutil.ToFloat64(m.PPM))
	assert.Equal(t, float64(RatingModerate), testutil.ToFloat64(m.Rating))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exchanges.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exchanges.WithLabelValues("read_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reports.WithLabelValues("ok")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ndirstat_co2_ppm 1234"))
}
