// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/pathprobe/pathprobe/internal/logger"
	"github.com/pathprobe/pathprobe/internal/probe"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Coordinator overlaps probe transmission with reply collection: a sender
// goroutine walks the TTL range while a receiver goroutine drains the
// shared raw socket, correlating replies against outstanding probes by
// the key embedded in each probe. All shared state sits behind one mutex,
// and no socket I/O happens while it is held, so a slow receive never
// stalls the sender.
//
// Every probe carries a run-unique key, the sequence number for ICMP
// probes and the destination port for UDP probes, so replies resolve by
// keyed lookup and out-of-order arrival cannot misattribute an RTT.
type Coordinator struct {
	cfg     Config
	metrics metrics

	// open, sendUDP and randID are swappable for tests.
	open    func() (conn, error)
	sendUDP func(dst net.IP, port, ttl, payloadLen int) (time.Time, error)
	randID  func() uint16

	mu      sync.Mutex
	pending map[uint16]outstanding
	hops    map[int]*HopRecord
	// reached is a monotonic latch: once true it stops the sender from
	// issuing further TTLs and is never reset.
	reached bool

	// done is closed by the sender after its grace period; the receiver
	// polls it between bounded waits.
	done chan struct{}
}

// outstanding describes one in-flight probe.
type outstanding struct {
	ttl    int
	sentAt time.Time
}

// NewCoordinator creates a concurrent traceroute with the given configuration.
func NewCoordinator(cfg Config) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		metrics: newMetrics(),
		open: func() (conn, error) {
			return probe.Listen()
		},
		sendUDP: probe.SendUDP,
		randID: func() uint16 {
			return uint16(rand.N(65535) + 1) // #nosec G404 // correlation id, not crypto
		},
		pending: make(map[uint16]outstanding),
		hops:    make(map[int]*HopRecord),
		done:    make(chan struct{}),
	}
}

// Reached reports whether the destination answered during the run.
func (co *Coordinator) Reached() bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.reached
}

// key derives the run-unique correlation key of probe n at the given TTL.
func (co *Coordinator) key(ttl, n int) uint16 {
	k := (ttl-1)*numProbes + n
	if co.cfg.Protocol == ProtocolUDP {
		k += udpBasePort + 1
	}
	return uint16(k) // #nosec G115 // bounded by MaxTTL*numProbes
}

// Run traces the path to dst with overlapped sending and receiving, then
// emits the collected HopRecords in TTL order once both tasks have joined.
func (co *Coordinator) Run(ctx context.Context, dst net.IP, emit func(HopRecord)) error {
	tracer := trace.SpanFromContext(ctx).TracerProvider().Tracer("traceroute.coordinator")
	ctx, span := tracer.Start(ctx, "Run", trace.WithAttributes(
		attribute.Stringer("traceroute.target", dst),
		attribute.Stringer("traceroute.protocol", co.cfg.Protocol),
		attribute.Int("traceroute.max_hops", co.cfg.MaxTTL),
	))
	defer span.End()

	c, err := co.open()
	if err != nil {
		return wrapError(ctx, err, "failed to open ICMP socket")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		co.sendProbes(ctx, c, dst)
	}()
	go func() {
		defer wg.Done()
		co.receiveReplies(ctx, c, dst)
	}()
	wg.Wait()
	_ = c.Close()

	co.mu.Lock()
	ttls := make([]int, 0, len(co.hops))
	for ttl := range co.hops {
		ttls = append(ttls, ttl)
	}
	slices.Sort(ttls)
	records := make([]HopRecord, 0, len(ttls))
	for _, ttl := range ttls {
		records = append(records, *co.hops[ttl])
	}
	reached := co.reached
	co.mu.Unlock()

	for _, hop := range records {
		co.metrics.RecordHop(dst.String(), co.cfg.Protocol, hop)
		if emit != nil {
			emit(hop)
		}
	}
	if reached {
		co.metrics.RecordReached(dst.String(), co.cfg.Protocol)
	}
	span.SetAttributes(attribute.Bool("traceroute.reached", reached))

	return ctx.Err()
}

// sendProbes walks the TTL range, issuing the probe wave for each TTL with
// a short delay between sends. After the last wave it sleeps one timeout
// as a grace period for in-flight replies, then signals completion.
func (co *Coordinator) sendProbes(ctx context.Context, c conn, dst net.IP) {
	log := logger.FromContext(ctx)
	id := co.randID()

	for ttl := 1; ttl <= co.cfg.MaxTTL && ctx.Err() == nil; ttl++ {
		for n := 0; n < numProbes; n++ {
			key := co.key(ttl, n)

			// The probe is registered before it leaves, so a reply
			// racing the send still resolves by keyed lookup.
			co.mu.Lock()
			hop, ok := co.hops[ttl]
			if !ok {
				hop = newHopRecord(ttl)
				co.hops[ttl] = hop
			}
			hop.Keys = append(hop.Keys, key)
			co.pending[key] = outstanding{ttl: ttl, sentAt: time.Now()}
			co.mu.Unlock()

			var err error
			switch co.cfg.Protocol {
			case ProtocolICMP:
				if err = c.SetTTL(ttl); err == nil {
					_, err = c.Send(probe.EchoRequest(id, key, co.cfg.PayloadLen), dst)
				}
			case ProtocolUDP:
				_, err = co.sendUDP(dst, int(key), ttl, co.cfg.PayloadLen)
			}
			if err != nil {
				log.ErrorContext(ctx, "Failed to send probe", "ttl", ttl, "key", key, "error", err)
				co.mu.Lock()
				delete(co.pending, key)
				hop.Keys = hop.Keys[:len(hop.Keys)-1]
				co.mu.Unlock()
				continue
			}

			select {
			case <-ctx.Done():
			case <-time.After(co.cfg.Delay):
			}
		}

		co.mu.Lock()
		reached := co.reached
		co.mu.Unlock()
		if reached {
			break
		}
	}

	// Grace period: leave the receiver time to drain replies to the
	// probes of the last wave before signaling completion.
	select {
	case <-ctx.Done():
	case <-time.After(co.cfg.Timeout):
	}
	close(co.done)
}

// receiveReplies drains the shared socket with bounded waits, resolving
// each reply against the outstanding probes by its recovered key. It stops
// once completion has been signaled and a further wait yields no data.
func (co *Coordinator) receiveReplies(ctx context.Context, c conn, dst net.IP) {
	log := logger.FromContext(ctx)

	for {
		// Parsing happens out here; the lock below guards only the
		// in-memory queue and maps.
		reply, at, err := c.AwaitReply(co.cfg.Timeout)
		switch {
		case errors.Is(err, probe.ErrTimeout):
			select {
			case <-co.done:
				return
			default:
				continue
			}
		case errors.Is(err, probe.ErrShortPacket):
			continue
		case err != nil:
			log.ErrorContext(ctx, "Failed to receive reply", "error", err)
			select {
			case <-co.done:
				return
			default:
				continue
			}
		}

		key, ok := reply.Key()
		if !ok {
			continue
		}

		co.mu.Lock()
		if out, sent := co.pending[key]; sent {
			delete(co.pending, key)
			hop := co.hops[out.ttl]
			hop.Addrs[key] = reply.From
			hop.RTTs[key] = at.Sub(out.sentAt)
			if terminal(co.cfg.Protocol, reply, dst) {
				co.reached = true
			}
		}
		co.mu.Unlock()
	}
}
