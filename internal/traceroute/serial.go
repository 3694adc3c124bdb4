// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"github.com/pathprobe/pathprobe/internal/logger"
	"github.com/pathprobe/pathprobe/internal/probe"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Session runs a serial traceroute: every probe is sent and then awaited
// with the configured timeout before the next probe leaves, TTL by TTL,
// until the destination answers or MaxTTL is exhausted.
type Session struct {
	cfg     Config
	metrics metrics
	reached bool

	// open, sendUDP and randID are swappable for tests.
	open    func() (conn, error)
	sendUDP func(dst net.IP, port, ttl, payloadLen int) (time.Time, error)
	randID  func() uint16
}

// NewSession creates a serial traceroute session with the given configuration.
func NewSession(cfg Config) *Session {
	return &Session{
		cfg:     cfg,
		metrics: newMetrics(),
		open: func() (conn, error) {
			return probe.Listen()
		},
		sendUDP: probe.SendUDP,
		randID: func() uint16 {
			return uint16(rand.N(65535) + 1) // #nosec G404 // correlation id, not crypto
		},
	}
}

// Reached reports whether the destination answered during the run.
func (s *Session) Reached() bool {
	return s.reached
}

// Run traces the path to dst, emitting one HopRecord per probed TTL in
// order, each before the next TTL is started.
func (s *Session) Run(ctx context.Context, dst net.IP, emit func(HopRecord)) error {
	log := logger.FromContext(ctx)
	tracer := trace.SpanFromContext(ctx).TracerProvider().Tracer("traceroute.session")
	ctx, span := tracer.Start(ctx, "Run", trace.WithAttributes(
		attribute.Stringer("traceroute.target", dst),
		attribute.Stringer("traceroute.protocol", s.cfg.Protocol),
		attribute.Int("traceroute.max_hops", s.cfg.MaxTTL),
	))
	defer span.End()

	c, err := s.open()
	if err != nil {
		return wrapError(ctx, err, "failed to open ICMP socket")
	}
	defer func() { _ = c.Close() }()

	// One identifier for the whole run; the per-probe key is the
	// sequence number (ICMP) or the destination port (UDP).
	id := s.randID()

	for ttl := 1; ttl <= s.cfg.MaxTTL && !s.reached; ttl++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var hop *HopRecord
		switch s.cfg.Protocol {
		case ProtocolICMP:
			hop, err = s.probeHopICMP(c, dst, id, ttl)
		case ProtocolUDP:
			hop, err = s.probeHopUDP(c, dst, ttl)
		default:
			return wrapError(ctx, errors.New("unknown protocol"), "invalid session configuration")
		}
		if err != nil {
			return wrapError(ctx, err, "failed to probe hop", "ttl", ttl)
		}

		s.metrics.RecordHop(dst.String(), s.cfg.Protocol, *hop)
		log.DebugContext(ctx, "Probed hop", "ttl", ttl, "responses", len(hop.Addrs), "reached", s.reached)
		span.AddEvent("hop probed", trace.WithAttributes(
			attribute.Int("traceroute.ttl", ttl),
			attribute.Int("traceroute.responses", len(hop.Addrs)),
			attribute.Bool("traceroute.reached", s.reached),
		))

		if emit != nil {
			emit(*hop)
		}
	}

	if s.reached {
		s.metrics.RecordReached(dst.String(), s.cfg.Protocol)
	}
	return nil
}

// probeHopICMP sends the echo request wave for one TTL, awaiting each
// reply before the next send. Any reply that arrives within the timeout
// is attributed to the probe in flight.
func (s *Session) probeHopICMP(c conn, dst net.IP, id uint16, ttl int) (*HopRecord, error) {
	hop := newHopRecord(ttl)

	for n := 0; n < numProbes; n++ {
		seq := uint16(n) // #nosec G115 // numProbes is 3
		if err := c.SetTTL(ttl); err != nil {
			return nil, err
		}

		sentAt, err := c.Send(probe.EchoRequest(id, seq, s.cfg.PayloadLen), dst)
		if err != nil {
			return nil, err
		}
		hop.Keys = append(hop.Keys, seq)

		reply, at, err := c.AwaitReply(s.cfg.Timeout)
		switch {
		case errors.Is(err, probe.ErrTimeout), errors.Is(err, probe.ErrShortPacket):
			continue
		case err != nil:
			return nil, err
		}

		if terminal(ProtocolICMP, reply, dst) {
			s.reached = true
		}
		hop.Addrs[seq] = reply.From
		hop.RTTs[seq] = at.Sub(sentAt)
	}

	return hop, nil
}

// probeHopUDP sends the UDP probe wave for one TTL. The reply's recovered
// destination port must equal the sent port for the probe to resolve;
// mismatches are dropped, not retried.
func (s *Session) probeHopUDP(c conn, dst net.IP, ttl int) (*HopRecord, error) {
	hop := newHopRecord(ttl)

	port := udpBasePort
	for n := 0; n < numProbes; n++ {
		port++
		sentAt, err := s.sendUDP(dst, port, ttl, s.cfg.PayloadLen)
		if err != nil {
			return nil, err
		}
		key := uint16(port) // #nosec G115 // ports stay below 65536
		hop.Keys = append(hop.Keys, key)

		reply, at, err := c.AwaitReply(s.cfg.Timeout)
		switch {
		case errors.Is(err, probe.ErrTimeout), errors.Is(err, probe.ErrShortPacket):
			continue
		case err != nil:
			return nil, err
		}

		if terminal(ProtocolUDP, reply, dst) {
			s.reached = true
		}

		recovered, ok := reply.Key()
		if !ok || recovered != key {
			continue
		}
		hop.Addrs[key] = reply.From
		hop.RTTs[key] = at.Sub(sentAt)
	}

	return hop, nil
}
