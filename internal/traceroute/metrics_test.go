// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pathprobe/pathprobe/internal/probe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_Metrics(t *testing.T) {
	dst := net.IPv4(10, 0, 0, 9)
	hop1 := net.IPv4(192, 168, 0, 1)

	fc := &fakeSerialConn{steps: []serialStep{
		timeExceeded(hop1, 0),
		{err: probe.ErrTimeout},
		{err: probe.ErrTimeout},
		echoReply(dst, 0),
		echoReply(dst, 1),
		echoReply(dst, 2),
	}}
	s := newTestSession(serialConfig(ProtocolICMP, 5), fc)

	registry := prometheus.NewRegistry()
	registry.MustRegister(s.GetCollectors()...)

	require.NoError(t, s.Run(context.Background(), dst, nil))

	target, proto := dst.String(), ProtocolICMP.String()
	assert.Equal(t, 6.0, testutil.ToFloat64(s.metrics.probes.WithLabelValues(target, proto)))
	assert.Equal(t, 4.0, testutil.ToFloat64(s.metrics.responses.WithLabelValues(target, proto)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.reached.WithLabelValues(target, proto)))

	series, err := testutil.GatherAndCount(registry, "pathprobe_traceroute_hop_rtt_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func TestCoordinator_Metrics(t *testing.T) {
	dst := net.IPv4(10, 0, 0, 9)

	cc := newChanConn()
	cfg := concurrentConfig(ProtocolUDP, 2)
	cfg.Timeout = 20 * time.Millisecond
	co := newTestCoordinator(cfg, cc)
	co.sendUDP = func(net.IP, int, int, int) (time.Time, error) {
		return time.Now(), nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(co.GetCollectors()...)

	require.NoError(t, co.Run(context.Background(), dst, nil))

	target, proto := dst.String(), ProtocolUDP.String()
	assert.Equal(t, 6.0, testutil.ToFloat64(co.metrics.probes.WithLabelValues(target, proto)))
	assert.Equal(t, 0.0, testutil.ToFloat64(co.metrics.responses.WithLabelValues(target, proto)))
	assert.Equal(t, 0.0, testutil.ToFloat64(co.metrics.reached.WithLabelValues(target, proto)))

	series, err := testutil.GatherAndCount(registry, "pathprobe_traceroute_probes_sent_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}
