// Package metrics holds the Prometheus instruments for interlink.
// All methods are safe on a nil *Metrics so components can run without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metric instruments
type Metrics struct {
	TransitionsTotal        *prometheus.CounterVec
	EstablishAttemptsTotal  *prometheus.CounterVec
	Connections             *prometheus.GaugeVec
	RelaySendsTotal         *prometheus.CounterVec
	RelaySendDuration       prometheus.Histogram
	AnalysisDuration        prometheus.Histogram
	AnalysisPartialFailures prometheus.Counter
	CompatiblePairs         prometheus.Gauge
	Profiles                prometheus.Gauge
	RefreshesTotal          *prometheus.CounterVec
}

// New registers and returns all metrics on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "interlink_connection_transitions_total",
			Help: "Connection state transitions",
		}, []string{"from", "to"}),

		EstablishAttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "interlink_establish_attempts_total",
			Help: "Connector establish attempts by result",
		}, []string{"result"}),

		Connections: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "interlink_connections",
			Help: "Tracked connections by state",
		}, []string{"state"}),

		RelaySendsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "interlink_relay_sends_total",
			Help: "Relay sends by result",
		}, []string{"result"}),

		RelaySendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "interlink_relay_send_duration_seconds",
			Help:    "Relay send duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
		}),

		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "interlink_analysis_duration_seconds",
			Help:    "Compatibility analysis pass duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}),

		AnalysisPartialFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "interlink_analysis_partial_failures_total",
			Help: "Interfaces omitted from analysis because the oracle failed for them",
		}),

		CompatiblePairs: f.NewGauge(prometheus.GaugeOpts{
			Name: "interlink_compatible_pairs",
			Help: "Directed compatible interface pairs in the current map",
		}),

		Profiles: f.NewGauge(prometheus.GaugeOpts{
			Name: "interlink_profiles",
			Help: "Profiles held by the profile store",
		}),

		RefreshesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "interlink_discovery_refreshes_total",
			Help: "Discovery source refreshes by source and result",
		}, []string{"source", "result"}),
	}
}

// RecordTransition counts a state change and moves the per-state gauge.
// An empty from means the connection was just created.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.TransitionsTotal.WithLabelValues(from, to).Inc()
		m.Connections.WithLabelValues(from).Dec()
	}
	m.Connections.WithLabelValues(to).Inc()
}

// RecordRemoval drops a connection from the per-state gauge
func (m *Metrics) RecordRemoval(state string) {
	if m == nil {
		return
	}
	m.Connections.WithLabelValues(state).Dec()
}

// RecordAttempt counts an establish attempt
func (m *Metrics) RecordAttempt(success bool) {
	if m == nil {
		return
	}
	m.EstablishAttemptsTotal.WithLabelValues(result(success)).Inc()
}

// RecordSend records a relay send
func (m *Metrics) RecordSend(success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.RelaySendsTotal.WithLabelValues(result(success)).Inc()
	m.RelaySendDuration.Observe(d.Seconds())
}

// RecordAnalysis records a finished analysis pass
func (m *Metrics) RecordAnalysis(d time.Duration, pairs, partialFailures int) {
	if m == nil {
		return
	}
	m.AnalysisDuration.Observe(d.Seconds())
	m.CompatiblePairs.Set(float64(pairs))
	m.AnalysisPartialFailures.Add(float64(partialFailures))
}

// SetProfiles sets the profile count
func (m *Metrics) SetProfiles(n int) {
	if m == nil {
		return
	}
	m.Profiles.Set(float64(n))
}

// RecordRefresh counts a discovery source refresh
func (m *Metrics) RecordRefresh(source string, success bool) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(source, result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
