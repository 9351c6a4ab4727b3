// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package link

import (
	"time"

	"github.com/pion/linksim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports link counters to Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	admitted [linksim.NumPriorities]prometheus.Counter
	rejected [linksim.NumPriorities]prometheus.Counter
	drained  [linksim.NumPriorities]prometheus.Counter
	queued   [linksim.NumPriorities]prometheus.Gauge
	delay    [linksim.NumPriorities]prometheus.Observer
	running  prometheus.Gauge
}

// NewMetrics registers the link metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	admitted := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "linksim_packets_admitted_total",
		Help: "Packets admitted to the link queues",
	}, []string{"priority"})
	rejected := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "linksim_packets_rejected_total",
		Help: "Packets rejected because the queue was full or the link terminated",
	}, []string{"priority"})
	drained := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "linksim_packets_drained_total",
		Help: "Packets removed from the queues and sent on the link",
	}, []string{"priority"})
	queued := factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "linksim_queue_length",
		Help: "Packets currently waiting in the link queues",
	}, []string{"priority"})
	delay := factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linksim_queueing_delay_seconds",
		Help:    "Time packets spent queued before service",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
	}, []string{"priority"})

	m := &Metrics{
		running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "linksim_link_running",
			Help: "1 while the drain scheduler is running",
		}),
	}
	for _, p := range linksim.Priorities() {
		label := p.String()
		m.admitted[p] = admitted.WithLabelValues(label)
		m.rejected[p] = rejected.WithLabelValues(label)
		m.drained[p] = drained.WithLabelValues(label)
		m.queued[p] = queued.WithLabelValues(label)
		m.delay[p] = delay.WithLabelValues(label)
	}

	return m
}

func (m *Metrics) onAdmitted(p linksim.Priority) {
	if m == nil || !p.Valid() {
		return
	}
	m.admitted[p].Inc()
	m.queued[p].Inc()
}

func (m *Metrics) onRejected(p linksim.Priority) {
	if m == nil || !p.Valid() {
		return
	}
	m.rejected[p].Inc()
}

func (m *Metrics) onDrained(p linksim.Priority, delay time.Duration) {
	if m == nil {
		return
	}
	m.drained[p].Inc()
	m.queued[p].Dec()
	m.delay[p].Observe(delay.Seconds())
}

// clearQueued resets the queue length gauges once a link stopped holding
// packets.
func (m *Metrics) clearQueued() {
	if m == nil {
		return
	}
	for _, g := range m.queued {
		g.Set(0)
	}
}

func (m *Metrics) setRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.running.Set(1)
	} else {
		m.running.Set(0)
	}
}
