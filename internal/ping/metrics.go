// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package ping

import "github.com/prometheus/client_golang/prometheus"

// metrics defines the metric collectors of the ping engine
type metrics struct {
	sent     *prometheus.CounterVec
	received *prometheus.CounterVec
	rtt      *prometheus.HistogramVec
}

// newMetrics initializes metric collectors of the ping engine
func newMetrics() metrics {
	return metrics{
		sent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pathprobe_ping_probes_sent_total",
				Help: "Total number of echo requests sent to the target.",
			},
			[]string{"target"},
		),
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pathprobe_ping_replies_received_total",
				Help: "Total number of matching echo replies received from the target.",
			},
			[]string{"target"},
		),
		rtt: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "pathprobe_ping_rtt_seconds",
				Help: "Histogram of echo round-trip times in seconds.",
			},
			[]string{"target"},
		),
	}
}

// Record updates the collectors with the outcome of one probe
func (m *metrics) Record(target string, res Result) {
	m.sent.WithLabelValues(target).Inc()
	if res.Lost {
		return
	}
	m.received.WithLabelValues(target).Inc()
	m.rtt.WithLabelValues(target).Observe(res.RTT.Seconds())
}

// GetCollectors returns all metric collectors
func (p *Pinger) GetCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.metrics.sent,
		p.metrics.received,
		p.metrics.rtt,
	}
}
