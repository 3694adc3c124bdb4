// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package ping

import (
	"math"
	"time"
)

// Summary holds the statistics of a finished (or interrupted) session.
type Summary struct {
	// Transmitted is the number of probes actually sent.
	Transmitted int `json:"transmitted" yaml:"transmitted"`
	// Received is the number of probes with a matching reply.
	Received int `json:"received" yaml:"received"`

	Min time.Duration `json:"min" yaml:"min"`
	Avg time.Duration `json:"avg" yaml:"avg"`
	Max time.Duration `json:"max" yaml:"max"`
	// Mdev is the mean absolute deviation of the RTT samples from their average.
	Mdev time.Duration `json:"mdev" yaml:"mdev"`
}

// LossPercent is the packet loss of the session as an integer percentage.
func (s Summary) LossPercent() int {
	if s.Transmitted == 0 {
		return 0
	}
	return int(math.Round(100 * (1 - float64(s.Received)/float64(s.Transmitted))))
}

// newSummary computes the session statistics from the collected RTT samples.
func newSummary(transmitted int, rtts []time.Duration) Summary {
	s := Summary{Transmitted: transmitted, Received: len(rtts)}
	if len(rtts) == 0 {
		return s
	}

	var sum time.Duration
	s.Min = rtts[0]
	s.Max = rtts[0]
	for _, rtt := range rtts {
		sum += rtt
		if rtt < s.Min {
			s.Min = rtt
		}
		if rtt > s.Max {
			s.Max = rtt
		}
	}
	s.Avg = sum / time.Duration(len(rtts))

	var dev time.Duration
	for _, rtt := range rtts {
		d := rtt - s.Avg
		if d < 0 {
			d = -d
		}
		dev += d
	}
	s.Mdev = dev / time.Duration(len(rtts))

	return s
}
