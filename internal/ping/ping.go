// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

// Package ping drives fixed-count, fixed-interval ICMP echo probing
// against a single destination over one raw socket.
package ping

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/pathprobe/pathprobe/internal/logger"
	"github.com/pathprobe/pathprobe/internal/probe"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config is the configuration of one ping session.
type Config struct {
	// Count is the number of echo probes to send.
	Count int `json:"count" yaml:"count" mapstructure:"count"`
	// Timeout is the per-probe receive timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	// Interval is the time between the start of consecutive probes.
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`
	// PayloadLen is the echo payload length in bytes.
	PayloadLen int `json:"payloadLen" yaml:"payloadLen" mapstructure:"payloadLen"`
}

func (c *Config) Validate() error {
	if c.Count <= 0 {
		return errors.New("count must be greater than 0")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be greater than 0")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	if c.PayloadLen < 0 || c.PayloadLen > 1400 {
		return fmt.Errorf("invalid payload length: %d", c.PayloadLen)
	}
	return nil
}

// DefaultConfig matches the classic ping defaults of the tool.
func DefaultConfig() Config {
	return Config{
		Count:      10,
		Timeout:    2 * time.Second,
		Interval:   time.Second,
		PayloadLen: 48,
	}
}

// conn is the send/receive capability the session is built on.
type conn interface {
	Send(pkt []byte, dst net.IP) (time.Time, error)
	AwaitReply(timeout time.Duration) (probe.Reply, time.Time, error)
	Close() error
}

// Result is the outcome of a single echo probe.
type Result struct {
	// Seq is the sequence number of the probe.
	Seq uint16
	// Lost indicates that no matching reply arrived within the timeout.
	Lost bool
	// RTT is the measured round-trip time. Zero when Lost.
	RTT time.Duration
	// From is the address the reply came from.
	From net.IP
	// HopTTL is the remaining TTL of the reply's IP header.
	HopTTL int
	// PayloadLen is the reply's IP payload size in bytes.
	PayloadLen int
}

// Pinger runs one serial ping session: every probe is sent and then
// awaited with the configured timeout before the next one is issued.
type Pinger struct {
	cfg     Config
	metrics metrics

	// open and randID are swappable for tests.
	open   func() (conn, error)
	randID func() uint16
}

// New creates a Pinger with the given configuration.
func New(cfg Config) *Pinger {
	return &Pinger{
		cfg:     cfg,
		metrics: newMetrics(),
		open: func() (conn, error) {
			return probe.Listen()
		},
		randID: func() uint16 {
			return uint16(rand.N(65535) + 1) // #nosec G404 // correlation id, not crypto
		},
	}
}

// Run executes the session against dst, invoking onResult for every probe
// in send order. It always returns the summary of the probes completed so
// far, also when the context is canceled mid-session.
func (p *Pinger) Run(ctx context.Context, dst net.IP, onResult func(Result)) (Summary, error) {
	log := logger.FromContext(ctx)
	tracer := trace.SpanFromContext(ctx).TracerProvider().Tracer("ping")
	ctx, span := tracer.Start(ctx, "Run", trace.WithAttributes(
		attribute.Stringer("ping.target", dst),
		attribute.Int("ping.count", p.cfg.Count),
		attribute.Stringer("ping.timeout", p.cfg.Timeout),
	))
	defer span.End()

	c, err := p.open()
	if err != nil {
		span.RecordError(err)
		return Summary{}, fmt.Errorf("failed to open ICMP socket: %w", err)
	}
	defer func() { _ = c.Close() }()

	var rtts []time.Duration
	sent := 0
	for seq := 0; seq < p.cfg.Count; seq++ {
		if ctx.Err() != nil {
			break
		}

		res, err := p.probeOnce(c, dst, uint16(seq)) // #nosec G115 // count is validated
		if err != nil {
			span.RecordError(err)
			return newSummary(sent, rtts), err
		}
		sent++
		p.metrics.Record(dst.String(), res)

		if res.Lost {
			log.DebugContext(ctx, "Probe timed out", "seq", res.Seq)
			span.AddEvent("probe lost", trace.WithAttributes(attribute.Int("ping.seq", int(res.Seq))))
		} else {
			rtts = append(rtts, res.RTT)
			span.AddEvent("reply received", trace.WithAttributes(
				attribute.Int("ping.seq", int(res.Seq)),
				attribute.Stringer("ping.rtt", res.RTT),
			))
		}
		if onResult != nil {
			onResult(res)
		}

		// Sleep out the remainder of the send interval, so probes leave
		// roughly once per interval regardless of how long the wait took.
		if seq < p.cfg.Count-1 {
			select {
			case <-ctx.Done():
			case <-time.After(p.cfg.Interval):
			}
		}
	}

	return newSummary(sent, rtts), ctx.Err()
}

// probeOnce sends one echo request and waits for its matching reply.
// Replies carrying a different identifier or sequence number are spurious
// traffic and are discarded; waiting continues until the probe deadline.
func (p *Pinger) probeOnce(c conn, dst net.IP, seq uint16) (Result, error) {
	id := p.randID()
	pkt := probe.EchoRequest(id, seq, p.cfg.PayloadLen)

	sentAt, err := c.Send(pkt, dst)
	if err != nil {
		return Result{}, fmt.Errorf("failed to send echo request: %w", err)
	}

	deadline := sentAt.Add(p.cfg.Timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Result{Seq: seq, Lost: true}, nil
		}

		reply, at, err := c.AwaitReply(remaining)
		switch {
		case errors.Is(err, probe.ErrTimeout):
			return Result{Seq: seq, Lost: true}, nil
		case errors.Is(err, probe.ErrShortPacket):
			continue
		case err != nil:
			return Result{}, err
		}

		if reply.Type != probe.TypeEchoReply || reply.ID != id || reply.Seq != seq {
			continue
		}

		return Result{
			Seq:        seq,
			RTT:        at.Sub(sentAt),
			From:       reply.From,
			HopTTL:     reply.HopTTL,
			PayloadLen: reply.PayloadLen,
		}, nil
	}
}
