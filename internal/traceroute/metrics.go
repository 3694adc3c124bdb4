// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import "github.com/prometheus/client_golang/prometheus"

// metrics defines the metric collectors of the traceroute engine
type metrics struct {
	probes    *prometheus.CounterVec
	responses *prometheus.CounterVec
	reached   *prometheus.GaugeVec
	rtt       *prometheus.HistogramVec
}

// newMetrics initializes metric collectors of the traceroute engine
func newMetrics() metrics {
	labels := []string{"target", "protocol"}
	return metrics{
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pathprobe_traceroute_probes_sent_total",
				Help: "Total number of traceroute probes sent towards the target.",
			},
			labels,
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pathprobe_traceroute_responses_total",
				Help: "Total number of probe responses matched to a hop.",
			},
			labels,
		),
		reached: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pathprobe_traceroute_destination_reached",
				Help: "Whether the destination answered during the last run.",
			},
			labels,
		),
		rtt: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "pathprobe_traceroute_hop_rtt_seconds",
				Help: "Histogram of per-hop round-trip times in seconds.",
			},
			labels,
		),
	}
}

// RecordHop updates the collectors with one finished hop record
func (m *metrics) RecordHop(target string, proto Protocol, hop HopRecord) {
	m.probes.WithLabelValues(target, proto.String()).Add(float64(len(hop.Keys)))
	m.responses.WithLabelValues(target, proto.String()).Add(float64(len(hop.Addrs)))
	for _, rtt := range hop.RTTs {
		m.rtt.WithLabelValues(target, proto.String()).Observe(rtt.Seconds())
	}
}

// RecordReached marks the destination as reached for the target
func (m *metrics) RecordReached(target string, proto Protocol) {
	m.reached.WithLabelValues(target, proto.String()).Set(1)
}

// Collectors returns all metric collectors of the engine
func (m *metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.probes, m.responses, m.reached, m.rtt}
}

// GetCollectors returns the metric collectors of a serial session
func (s *Session) GetCollectors() []prometheus.Collector {
	return s.metrics.Collectors()
}

// GetCollectors returns the metric collectors of a coordinator
func (co *Coordinator) GetCollectors() []prometheus.Collector {
	return co.metrics.Collectors()
}
