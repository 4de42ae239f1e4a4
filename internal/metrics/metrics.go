// Package metrics exports counters and gauges of the device API core in the
// Prometheus format. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wrt"

// Broadcast outcomes.
const (
	Delivered  = "delivered"
	Filtered   = "filtered"
	Suppressed = "suppressed"
)

type Metrics struct {
	listeners    *prometheus.GaugeVec
	broadcasts   *prometheus.CounterVec
	fetches      *prometheus.CounterVec
	fetchSeconds *prometheus.HistogramVec
	messages     *prometheus.CounterVec
	watches      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		listeners: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "systeminfo",
			Name:      "listeners",
			Help:      "Registered property change listeners.",
		}, []string{"property"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "systeminfo",
			Name:      "broadcasts_total",
			Help:      "Per-listener outcome of property change broadcasts.",
		}, []string{"property", "outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "systeminfo",
			Name:      "fetches_total",
			Help:      "Platform property queries.",
		}, []string{"property", "result"}),
		fetchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "systeminfo",
			Name:      "fetch_seconds",
			Help:      "Duration of platform property queries.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"property"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messageport",
			Name:      "messages_total",
			Help:      "Inbound messages by delivery result.",
		}, []string{"result"}),
		watches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "messageport",
			Name:      "listeners",
			Help:      "Attached message port listeners.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.listeners, m.broadcasts, m.fetches, m.fetchSeconds, m.messages, m.watches)
	}
	return m
}

func (m *Metrics) ListenerAdded(property string) {
	if m != nil {
		m.listeners.WithLabelValues(property).Inc()
	}
}

func (m *Metrics) ListenerRemoved(property string) {
	if m != nil {
		m.listeners.WithLabelValues(property).Dec()
	}
}

// Broadcast counts n listeners that saw the given outcome.
func (m *Metrics) Broadcast(property, outcome string, n int) {
	if m != nil && n > 0 {
		m.broadcasts.WithLabelValues(property, outcome).Add(float64(n))
	}
}

func (m *Metrics) Fetched(property string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetches.WithLabelValues(property, result).Inc()
	m.fetchSeconds.WithLabelValues(property).Observe(took.Seconds())
}

// Message counts one inbound message; result is "delivered" or "dropped".
func (m *Metrics) Message(result string) {
	if m != nil {
		m.messages.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) PortListeners(delta int) {
	if m != nil {
		m.watches.Add(float64(delta))
	}
}
