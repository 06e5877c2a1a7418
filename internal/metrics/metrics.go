// Package metrics holds the Prometheus collectors for the terminal server.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "porterminal"

// Metrics holds all Prometheus metrics. Pass to components that record them.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	ConnectedClients prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsRemoved  *prometheus.CounterVec
	InputRejected    *prometheus.CounterVec
	OutputBytes      prometheus.Counter
	InputBytes       prometheus.Counter
}

// New creates and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of live PTY sessions",
			},
		),
		ConnectedClients: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connected_clients",
				Help:      "Number of attached terminal connections",
			},
		),
		SessionsCreated: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_created_total",
				Help:      "Total sessions created",
			},
		),
		SessionsRemoved: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_removed_total",
				Help:      "Total sessions destroyed",
			},
			[]string{"reason"}, // pty_died, max_duration, reconnect_window, killed, shutdown
		),
		InputRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "input_rejected_total",
				Help:      "Total client input messages dropped",
			},
			[]string{"reason"}, // too_large, rate_limited
		),
		OutputBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pty_output_bytes_total",
				Help:      "Bytes read from PTYs and forwarded to clients",
			},
		),
		InputBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pty_input_bytes_total",
				Help:      "Bytes written to PTYs from clients",
			},
		),
	}
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionRemoved(reason string) {
	if m == nil {
		return
	}
	m.SessionsRemoved.WithLabelValues(reason).Inc()
	m.ActiveSessions.Dec()
}

func (m *Metrics) ClientAttached() {
	if m == nil {
		return
	}
	m.ConnectedClients.Inc()
}

func (m *Metrics) ClientDetached() {
	if m == nil {
		return
	}
	m.ConnectedClients.Dec()
}

func (m *Metrics) InputDropped(reason string) {
	if m == nil {
		return
	}
	m.InputRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Output(n int) {
	if m == nil {
		return
	}
	m.OutputBytes.Add(float64(n))
}

func (m *Metrics) Input(n int) {
	if m == nil {
		return
	}
	m.InputBytes.Add(float64(n))
}
