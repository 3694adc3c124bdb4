// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ipv4Datagram assembles a minimal IPv4 header in front of the payload,
// the way a raw ICMP socket delivers datagrams.
func ipv4Datagram(src net.IP, ttl uint8, payload []byte) []byte {
	hdr := make([]byte, ipHeaderMinLen)
	hdr[0] = 0x45 // version 4, IHL 5
	binary.BigEndian.PutUint16(hdr[2:4], uint16(ipHeaderMinLen+len(payload)))
	hdr[8] = ttl
	hdr[9] = ProtoICMP
	copy(hdr[12:16], src.To4())
	return append(hdr, payload...)
}

// icmpHeader assembles an 8-byte ICMP header. The last two 16-bit words are
// the echo id/seq pair for echo messages and unused for error messages.
func icmpHeader(typ, code uint8, a, b uint16) []byte {
	hdr := make([]byte, icmpHeaderLen)
	hdr[0] = typ
	hdr[1] = code
	binary.BigEndian.PutUint16(hdr[4:6], a)
	binary.BigEndian.PutUint16(hdr[6:8], b)
	binary.BigEndian.PutUint16(hdr[2:4], Checksum(hdr))
	return hdr
}

// innerFragment builds the payload of an ICMP error message: the original
// IP header followed by the first 8 bytes of the original transport header.
func innerFragment(proto uint8, transport []byte) []byte {
	hdr := make([]byte, ipHeaderMinLen)
	hdr[0] = 0x45
	hdr[9] = proto
	return append(hdr, transport...)
}

func TestEchoRequest(t *testing.T) {
	pkt := EchoRequest(0x1234, 7, 48)
	require.Len(t, pkt, icmpHeaderLen+48)

	// The reference codec must accept and reproduce our layout.
	msg, err := icmp.ParseMessage(ProtoICMP, pkt)
	require.NoError(t, err)
	assert.Equal(t, ipv4.ICMPTypeEcho, msg.Type)

	echo, ok := msg.Body.(*icmp.Echo)
	require.True(t, ok, "body must parse as an echo")
	assert.Equal(t, 0x1234, echo.ID)
	assert.Equal(t, 7, echo.Seq)
	assert.Equal(t, 48, len(echo.Data))
	for _, c := range echo.Data {
		assert.EqualValues(t, 'A', c)
	}

	assert.True(t, ValidSum(pkt))
}

func TestParseReply(t *testing.T) {
	hop := net.IPv4(192, 168, 10, 1)
	dst := net.IPv4(10, 0, 0, 42)

	udpTransport := make([]byte, udpHeaderLen)
	binary.BigEndian.PutUint16(udpTransport[0:2], 54321)
	binary.BigEndian.PutUint16(udpTransport[2:4], 33441)

	tests := []struct {
		name    string
		data    []byte
		want    Reply
		wantErr bool
	}{
		{
			name: "Echo reply",
			data: ipv4Datagram(dst, 57, echoReply(0xbeef, 3)),
			want: Reply{
				From: dst, HopTTL: 57, PayloadLen: icmpHeaderLen,
				Type: TypeEchoReply, ID: 0xbeef, Seq: 3,
			},
		},
		{
			name: "Time exceeded for a UDP probe",
			data: ipv4Datagram(hop, 63, append(
				icmpHeader(TypeTimeExceeded, 0, 0, 0),
				innerFragment(ProtoUDP, udpTransport)...,
			)),
			want: Reply{
				From: hop, HopTTL: 63,
				PayloadLen: icmpHeaderLen + ipHeaderMinLen + udpHeaderLen,
				Type:       TypeTimeExceeded,
				InnerProto: ProtoUDP, InnerPort: 33441,
			},
		},
		{
			name: "Destination unreachable for an echo probe",
			data: ipv4Datagram(dst, 49, append(
				icmpHeader(TypeDestUnreachable, 3, 0, 0),
				innerFragment(ProtoICMP, icmpHeader(TypeEchoRequest, 0, 0xbeef, 9))...,
			)),
			want: Reply{
				From: dst, HopTTL: 49,
				PayloadLen: icmpHeaderLen + ipHeaderMinLen + udpHeaderLen,
				Type:       TypeDestUnreachable, Code: 3,
				InnerProto: ProtoICMP, InnerID: 0xbeef, InnerSeq: 9,
			},
		},
		{
			name:    "Shorter than an IP header",
			data:    make([]byte, ipHeaderMinLen-1),
			wantErr: true,
		},
		{
			name:    "IP header only",
			data:    ipv4Datagram(hop, 64, nil),
			wantErr: true,
		},
		{
			name: "Error without embedded original",
			data: ipv4Datagram(hop, 64,
				icmpHeader(TypeTimeExceeded, 0, 0, 0),
			),
			wantErr: true,
		},
		{
			name: "Error with truncated transport fragment",
			data: ipv4Datagram(hop, 64, append(
				icmpHeader(TypeTimeExceeded, 0, 0, 0),
				innerFragment(ProtoUDP, udpTransport[:4])...,
			)),
			wantErr: true,
		},
		{
			name: "Bogus IHL",
			data: func() []byte {
				d := ipv4Datagram(dst, 57, echoReply(1, 1))
				d[0] = 0x42 // IHL below the minimum
				return d
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReply(tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrShortPacket)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseReply() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// echoReply builds an echo reply header for test datagrams.
func echoReply(id, seq uint16) []byte {
	return icmpHeader(TypeEchoReply, 0, id, seq)
}

func TestParseReply_HeaderOptions(t *testing.T) {
	// An IHL of 6 words inserts 4 option bytes between the fixed header
	// and the ICMP message.
	payload := echoReply(0x0101, 12)
	hdr := make([]byte, 24)
	hdr[0] = 0x46
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(hdr)+len(payload)))
	hdr[8] = 61
	hdr[9] = ProtoICMP
	copy(hdr[12:16], net.IPv4(172, 16, 0, 1).To4())

	got, err := ParseReply(append(hdr, payload...))
	require.NoError(t, err)
	assert.Equal(t, uint8(TypeEchoReply), got.Type)
	assert.Equal(t, uint16(0x0101), got.ID)
	assert.Equal(t, uint16(12), got.Seq)
	assert.Equal(t, len(payload), got.PayloadLen)
}

func TestReplyKey(t *testing.T) {
	tests := []struct {
		name   string
		reply  Reply
		want   uint16
		wantOK bool
	}{
		{
			name:   "Echo reply keys on sequence",
			reply:  Reply{Type: TypeEchoReply, Seq: 17},
			want:   17,
			wantOK: true,
		},
		{
			name:   "UDP error keys on embedded port",
			reply:  Reply{Type: TypeTimeExceeded, InnerProto: ProtoUDP, InnerPort: 33442},
			want:   33442,
			wantOK: true,
		},
		{
			name:   "ICMP error keys on embedded sequence",
			reply:  Reply{Type: TypeDestUnreachable, InnerProto: ProtoICMP, InnerSeq: 5},
			want:   5,
			wantOK: true,
		},
		{
			name:  "Echo request carries no key",
			reply: Reply{Type: TypeEchoRequest, Seq: 3},
		},
		{
			name:  "Error with unknown embedded protocol",
			reply: Reply{Type: TypeTimeExceeded, InnerProto: 6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := tt.reply.Key()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, key)
			}
		})
	}
}
