// control/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Prometheus usage monitor. Engine counters are sampled once per tick and
// exported as deltas, so the exported counters stay monotonic.

package control

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/momentics/hioload-appserver/api"
)

// DefaultNamespace prefixes every exported metric.
const DefaultNamespace = "hioload"

// MonitorConfig configures the Prometheus monitor.
type MonitorConfig struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MonitorOption configures the Prometheus monitor.
type MonitorOption func(*MonitorConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(ns string) MonitorOption {
	return func(c *MonitorConfig) { c.Namespace = ns }
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(s string) MonitorOption {
	return func(c *MonitorConfig) { c.Subsystem = s }
}

// WithConstLabels adds constant labels to every metric.
func WithConstLabels(l prometheus.Labels) MonitorOption {
	return func(c *MonitorConfig) { c.ConstLabels = l }
}

// WithRegistry selects the registerer.
func WithRegistry(r prometheus.Registerer) MonitorOption {
	return func(c *MonitorConfig) { c.Registry = r }
}

// PrometheusMonitor implements api.UsageMonitor.
type PrometheusMonitor struct {
	mu   sync.Mutex
	prev api.EngineStats

	running     prometheus.Gauge
	connections prometheus.Gauge
	startTime   prometheus.Gauge
	accepted    prometheus.Counter
	rejected    prometheus.Counter
	handshakes  prometheus.Counter
	removed     prometheus.Counter
	messages    *prometheus.CounterVec
	traffic     *prometheus.CounterVec
	exceptions  prometheus.Counter
	ticks       prometheus.Counter
}

var _ api.UsageMonitor = (*PrometheusMonitor)(nil)

// NewPrometheusMonitor registers the engine metrics. Registering twice on the
// same registry panics, as with promauto.
func NewPrometheusMonitor(opts ...MonitorOption) *PrometheusMonitor {
	cfg := MonitorConfig{Namespace: DefaultNamespace, Registry: prometheus.DefaultRegisterer}
	for _, o := range opts {
		o(&cfg)
	}
	f := promauto.With(cfg.Registry)
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: name, Help: help,
		})
	}
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: name, Help: help,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: name, Help: help,
		}, labels)
	}
	return &PrometheusMonitor{
		running:     gauge("engine_running", "1 while the engine tick loop runs"),
		connections: gauge("connections", "Admitted connections"),
		startTime:   gauge("start_time_seconds", "Engine start time, unix seconds"),
		accepted:    counter("connections_accepted_total", "Connections admitted"),
		rejected:    counter("connections_rejected_total", "Connections refused by the connection limit"),
		handshakes:  counter("tls_handshake_failures_total", "Failed TLS handshakes"),
		removed:     counter("connections_removed_total", "Connections removed"),
		messages:    counterVec("messages_total", "Frames by direction", "direction"),
		traffic:     counterVec("traffic_bytes_total", "Frame payload bytes by direction", "direction"),
		exceptions:  counter("exceptions_total", "Errors raised to the exception chain"),
		ticks:       counter("ticks_total", "Tick loop iterations"),
	}
}

// Tick samples the engine.
func (m *PrometheusMonitor) Tick(e api.Engine) error {
	s := e.Stats()
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.State() == api.EngineRunning {
		m.running.Set(1)
	} else {
		m.running.Set(0)
	}
	m.connections.Set(float64(s.Connections))
	if !s.StartedAt.IsZero() {
		m.startTime.Set(float64(s.StartedAt.Unix()))
	}
	add(m.accepted, s.Accepted, m.prev.Accepted)
	add(m.rejected, s.Rejected, m.prev.Rejected)
	add(m.handshakes, s.HandshakeFailures, m.prev.HandshakeFailures)
	add(m.removed, s.Removed, m.prev.Removed)
	add(m.messages.WithLabelValues("in"), s.MessagesReceived, m.prev.MessagesReceived)
	add(m.messages.WithLabelValues("out"), s.MessagesSent, m.prev.MessagesSent)
	add(m.traffic.WithLabelValues("in"), s.InboundTraffic, m.prev.InboundTraffic)
	add(m.traffic.WithLabelValues("out"), s.OutboundTraffic, m.prev.OutboundTraffic)
	add(m.exceptions, s.Exceptions, m.prev.Exceptions)
	add(m.ticks, s.Ticks, m.prev.Ticks)
	m.prev = s
	return nil
}

// add exports the growth since the previous sample. A smaller value means a
// different engine is being sampled; its total counts as growth.
func add(c prometheus.Counter, cur, prev uint64) {
	switch {
	case cur > prev:
		c.Add(float64(cur - prev))
	case cur < prev:
		c.Add(float64(cur))
	}
}
