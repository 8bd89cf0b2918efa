// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"net/http"
	"strings"

	"github.com/Thermoquad/ndirstat/pkg/mhz19"
	"github.com/Thermoquad/ndirstat/pkg/reporter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports loop results to Prometheus
type Metrics struct {
	Registry  *prometheus.Registry
	PPM       prometheus.Gauge
	Rating    prometheus.Gauge
	Exchanges *prometheus.CounterVec // labels: result
	Reports   *prometheus.CounterVec // labels: status
}

// NewMetrics creates a registry with the process collectors and the loop metrics
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		PPM: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ndirstat_co2_ppm",
			Help: "Last CO2 concentration read from the sensor.",
		}),
		Rating: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ndirstat_rating",
			Help: "Last air quality rating (0 good, 1 moderate, 2 poor, 255 unknown).",
		}),
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ndirstat_exchanges_total",
			Help: "Sensor exchanges by result.",
		}, []string{"result"}),
		Reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ndirstat_reports_total",
			Help: "Report attempts by status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.PPM, m.Rating, m.Exchanges, m.Reports)
	return m
}

// Handler returns the HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveExchange counts one sensor exchange
func (m *Metrics) ObserveExchange(err error) {
	m.Exchanges.WithLabelValues(labelValue(mhz19.CodeOf(err).String())).Inc()
}

// ObserveCycle records the outcome of a control cycle
func (m *Metrics) ObserveCycle(res CycleResult) {
	if res.Err == nil {
		m.PPM.Set(float64(res.Reading.PPM))
	}
	m.Rating.Set(float64(res.Rating))
	if res.Reported {
		m.ObserveReport(res.Report)
	}
}

// ObserveReport counts one report attempt
func (m *Metrics) ObserveReport(s reporter.Status) {
	m.Reports.WithLabelValues(labelValue(s.String())).Inc()
}

func labelValue(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.NewReplacer("(", "", ")", "").Replace(s)
	return s
}
