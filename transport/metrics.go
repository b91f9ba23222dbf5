// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transport label values.
const (
	kindStream   = "stream"
	kindDatagram = "datagram"
)

// Drop reasons.
const (
	dropDisconnected = "disconnected"
	dropDiscarded    = "discarded"
	dropFailed       = "failed"
)

// Metrics holds the Prometheus collectors shared by both transports. A
// nil *Metrics is valid and records nothing.
type Metrics struct {
	commandsSent    *prometheus.CounterVec
	commandsDropped *prometheus.CounterVec
	connectAttempts *prometheus.CounterVec
	sessionRebuilds *prometheus.CounterVec
	connected       *prometheus.GaugeVec
	latency         prometheus.Gauge
}

// NewMetrics registers the transport collectors with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	const namespace, subsystem = "polaris", "spiceapi"

	return &Metrics{
		commandsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_sent_total",
			Help:      "Commands written to the SpiceAPI socket or ARQ session",
		}, []string{"transport"}),

		commandsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_dropped_total",
			Help:      "Commands that never reached the SpiceAPI server",
		}, []string{"transport", "reason"}),

		connectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connect_attempts_total",
			Help:      "Stream connection attempts",
		}, []string{"transport"}),

		sessionRebuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_rebuilds_total",
			Help:      "Datagram sessions torn down and rebuilt",
		}, []string{"reason"}),

		connected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connected",
			Help:      "1 while the SpiceAPI session is alive",
		}, []string{"transport"}),

		latency: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "latency_milliseconds",
			Help:      "Rolling average datagram round trip",
		}),
	}
}

func (m *Metrics) sent(kind string) {
	if m == nil {
		return
	}
	m.commandsSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) dropped(kind, reason string) {
	if m == nil {
		return
	}
	m.commandsDropped.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) connectAttempt(kind string) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(kind).Inc()
}

func (m *Metrics) rebuilt(reason string) {
	if m == nil {
		return
	}
	m.sessionRebuilds.WithLabelValues(reason).Inc()
}

func (m *Metrics) setConnected(kind string, connected bool) {
	if m == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1
	}
	m.connected.WithLabelValues(kind).Set(value)
}

func (m *Metrics) setLatency(milliseconds int64) {
	if m == nil {
		return
	}
	m.latency.Set(float64(milliseconds))
}
