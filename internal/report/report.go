// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

// Package report renders the structured results of the probing engine
// as classic ping/traceroute text output.
package report

import (
	"fmt"
	"io"
	"net"
	"slices"
	"time"

	"github.com/pathprobe/pathprobe/internal/ping"
	"github.com/pathprobe/pathprobe/internal/traceroute"
)

// Reporter writes one line per probe result or hop record to w.
type Reporter struct {
	w io.Writer

	// lookupAddr is swappable for tests.
	lookupAddr func(addr string) ([]string, error)
}

// New creates a Reporter writing to w.
func New(w io.Writer) *Reporter {
	return &Reporter{
		w:          w,
		lookupAddr: net.LookupAddr,
	}
}

// PingHeader announces the start of a ping session.
func (r *Reporter) PingHeader(host string, addr net.IP) {
	fmt.Fprintf(r.w, "Ping to: %s (%s)...\n", host, addr)
}

// TracerouteHeader announces the start of a traceroute run.
func (r *Reporter) TracerouteHeader(proto traceroute.Protocol, host string, addr net.IP) {
	fmt.Fprintf(r.w, "%s traceroute to: %s (%s) ...\n", proto, host, addr)
}

// PingResult renders the outcome of one echo probe.
func (r *Reporter) PingResult(res ping.Result) {
	if res.Lost {
		fmt.Fprintf(r.w, "request timed out: icmp_seq=%d\n", res.Seq)
		return
	}

	addr := res.From.String()
	if name := r.resolveName(addr); name != "" {
		fmt.Fprintf(r.w, "%d bytes from %s (%s): icmp_seq=%d ttl=%d time=%.3f ms\n",
			res.PayloadLen, name, addr, res.Seq, res.HopTTL, ms(res.RTT))
		return
	}
	fmt.Fprintf(r.w, "%d bytes from %s: icmp_seq=%d ttl=%d time=%.3f ms\n",
		res.PayloadLen, addr, res.Seq, res.HopTTL, ms(res.RTT))
}

// PingSummary renders the statistics of a finished session. The rtt line
// is only printed when at least one reply was collected.
func (r *Reporter) PingSummary(host string, s ping.Summary) {
	fmt.Fprintf(r.w, "--- %s ping statistics ---\n", host)
	fmt.Fprintf(r.w, "%d packets transmitted, %d received, %d%% packet loss\n",
		s.Transmitted, s.Received, s.LossPercent())
	if s.Received > 0 {
		fmt.Fprintf(r.w, "rtt min/avg/max/mdev = %.3f/%.3f/%.3f/%.3f ms\n",
			ms(s.Min), ms(s.Avg), ms(s.Max), ms(s.Mdev))
	}
}

// Hop renders one traceroute hop line: for every probed key in sorted
// order either a wildcard marker or the answering hop, with consecutive
// identical hop addresses printed once.
func (r *Reporter) Hop(hop traceroute.HopRecord) {
	if len(hop.Keys) == 0 {
		fmt.Fprintf(r.w, "%2d   * * *\n", hop.TTL)
		return
	}

	keys := slices.Clone(hop.Keys)
	slices.Sort(keys)

	out := fmt.Sprintf("%2d   ", hop.TTL)
	var lastAddr string
	for _, key := range keys {
		addr, ok := hop.Addrs[key]
		if !ok {
			out += "* "
			continue
		}

		if s := addr.String(); s != lastAddr {
			if name := r.resolveName(s); name != "" {
				out += name + " "
			} else {
				out += s + " "
			}
			out += "(" + s + ") "
			lastAddr = s
		}

		out += fmt.Sprintf("%.3f ms  ", ms(hop.RTTs[key]))
	}

	fmt.Fprintln(r.w, out)
}

// resolveName performs a best-effort reverse DNS lookup, returning ""
// when the address does not resolve.
func (r *Reporter) resolveName(addr string) string {
	names, err := r.lookupAddr(addr)
	if err != nil || len(names) == 0 {
		return ""
	}
	return names[0]
}

// ms converts a duration to floating-point milliseconds.
func ms(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
