// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/pathprobe/pathprobe/internal/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminal(t *testing.T) {
	dst := net.IPv4(10, 0, 0, 9)
	hop := net.IPv4(192, 168, 0, 1)

	tests := []struct {
		name     string
		protocol Protocol
		reply    probe.Reply
		want     bool
	}{
		{
			name:     "Echo reply from the destination",
			protocol: ProtocolICMP,
			reply:    probe.Reply{Type: probe.TypeEchoReply, From: dst},
			want:     true,
		},
		{
			name:     "Echo reply from elsewhere",
			protocol: ProtocolICMP,
			reply:    probe.Reply{Type: probe.TypeEchoReply, From: hop},
		},
		{
			name:     "Time exceeded from the destination",
			protocol: ProtocolICMP,
			reply:    probe.Reply{Type: probe.TypeTimeExceeded, From: dst},
		},
		{
			name:     "Port unreachable from the destination",
			protocol: ProtocolUDP,
			reply:    probe.Reply{Type: probe.TypeDestUnreachable, From: dst},
			want:     true,
		},
		{
			name:     "Time exceeded is never terminal for UDP",
			protocol: ProtocolUDP,
			reply:    probe.Reply{Type: probe.TypeTimeExceeded, From: dst},
		},
		{
			name:     "Port unreachable from an intermediate hop",
			protocol: ProtocolUDP,
			reply:    probe.Reply{Type: probe.TypeDestUnreachable, From: hop},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, terminal(tt.protocol, tt.reply, dst))
		})
	}
}

func TestWrapError(t *testing.T) {
	t.Run("Nil error passes through", func(t *testing.T) {
		assert.NoError(t, wrapError(context.Background(), nil, "failed to probe hop", "ttl", 1))
	})

	t.Run("Wraps and unwraps", func(t *testing.T) {
		cause := errors.New("bad file descriptor")
		err := wrapError(context.Background(), cause, "failed to probe hop")
		require.Error(t, err)
		assert.Equal(t, "failed to probe hop: bad file descriptor", err.Error())
		assert.ErrorIs(t, err, cause)
	})

	t.Run("Attributes stay out of the message", func(t *testing.T) {
		cause := errors.New("bad file descriptor")
		err := wrapError(context.Background(), cause, "failed to probe hop", "ttl", 7)
		require.Error(t, err)
		assert.Equal(t, "failed to probe hop: bad file descriptor", err.Error())
		assert.NotContains(t, err.Error(), "EXTRA")
	})
}
