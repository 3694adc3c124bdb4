// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
)

// ICMP message types handled by the engine.
const (
	TypeEchoReply       = 0
	TypeDestUnreachable = 3
	TypeEchoRequest     = 8
	TypeTimeExceeded    = 11
)

// IP protocol numbers found in parsed headers.
const (
	ProtoICMP = 1
	ProtoUDP  = 17
)

const (
	ipHeaderMinLen = 20
	icmpHeaderLen  = 8
	udpHeaderLen   = 8
)

// ErrShortPacket is returned when a received datagram is too short or
// malformed to contain the headers the engine expects.
var ErrShortPacket = errors.New("packet too short or malformed")

// EchoRequest builds an ICMP echo request with the given identifier and
// sequence number and a payload of payloadLen 'A' bytes. The checksum is
// computed over the header and payload with the checksum field zeroed.
func EchoRequest(id, seq uint16, payloadLen int) []byte {
	pkt := make([]byte, icmpHeaderLen+payloadLen)
	pkt[0] = TypeEchoRequest
	pkt[1] = 0
	binary.BigEndian.PutUint16(pkt[4:6], id)
	binary.BigEndian.PutUint16(pkt[6:8], seq)
	copy(pkt[icmpHeaderLen:], bytes.Repeat([]byte{'A'}, payloadLen))

	binary.BigEndian.PutUint16(pkt[2:4], Checksum(pkt))
	return pkt
}

// Reply is a parsed ICMP datagram as read off a raw socket, IP header included.
type Reply struct {
	// From is the source address of the outer IP header, i.e. the hop
	// that generated the message.
	From net.IP
	// HopTTL is the remaining TTL of the outer IP header.
	HopTTL int
	// PayloadLen is the outer total length minus the IP header length.
	PayloadLen int

	// Type and Code of the outer ICMP header.
	Type uint8
	Code uint8
	// ID and Seq are the echo identifier and sequence number of the outer
	// ICMP header. Only meaningful for echo replies.
	ID  uint16
	Seq uint16

	// For destination-unreachable and time-exceeded messages the payload
	// carries the original IP header plus the first 8 bytes of the original
	// transport header. InnerProto records the original protocol, and the
	// recovered correlation fields are filled in accordingly.
	InnerProto uint8
	// InnerPort is the destination port of the embedded original UDP header.
	InnerPort uint16
	// InnerID and InnerSeq are the identifier and sequence number of the
	// embedded original ICMP echo header.
	InnerID  uint16
	InnerSeq uint16
}

// IsError reports whether the message is one of the ICMP error types
// that carry a fragment of the original probe.
func (r Reply) IsError() bool {
	return r.Type == TypeDestUnreachable || r.Type == TypeTimeExceeded
}

// Key returns the correlation key recovered from the reply: the sequence
// number for an echo reply, the embedded destination port for an error in
// response to a UDP probe, or the embedded sequence number for an error in
// response to an echo request. ok is false when no key could be recovered.
func (r Reply) Key() (key uint16, ok bool) {
	switch {
	case r.Type == TypeEchoReply:
		return r.Seq, true
	case r.IsError() && r.InnerProto == ProtoUDP:
		return r.InnerPort, true
	case r.IsError() && r.InnerProto == ProtoICMP:
		return r.InnerSeq, true
	default:
		return 0, false
	}
}

// ParseReply parses a raw IPv4 datagram containing an ICMP message.
// The input is expected to start with the IP header, as delivered by a
// SOCK_RAW ICMP socket. Malformed or truncated input yields ErrShortPacket.
func ParseReply(b []byte) (Reply, error) {
	if len(b) < ipHeaderMinLen {
		return Reply{}, ErrShortPacket
	}

	// Version/IHL nibble pair. The header length field counts 4-byte words.
	ihl := int(b[0]&0x0f) * 4
	if ihl < ipHeaderMinLen || len(b) < ihl+icmpHeaderLen {
		return Reply{}, ErrShortPacket
	}

	totalLen := int(binary.BigEndian.Uint16(b[2:4]))
	r := Reply{
		From:       net.IPv4(b[12], b[13], b[14], b[15]),
		HopTTL:     int(b[8]),
		PayloadLen: totalLen - ihl,
	}

	icmpHdr := b[ihl : ihl+icmpHeaderLen]
	r.Type = icmpHdr[0]
	r.Code = icmpHdr[1]
	r.ID = binary.BigEndian.Uint16(icmpHdr[4:6])
	r.Seq = binary.BigEndian.Uint16(icmpHdr[6:8])

	if !r.IsError() {
		return r, nil
	}

	// The error payload is the original IP header followed by the first
	// 8 bytes of the original transport header.
	inner := b[ihl+icmpHeaderLen:]
	if len(inner) < ipHeaderMinLen {
		return Reply{}, ErrShortPacket
	}
	innerIHL := int(inner[0]&0x0f) * 4
	if innerIHL < ipHeaderMinLen || len(inner) < innerIHL+udpHeaderLen {
		return Reply{}, ErrShortPacket
	}

	r.InnerProto = inner[9]
	transport := inner[innerIHL : innerIHL+udpHeaderLen]
	switch r.InnerProto {
	case ProtoUDP:
		r.InnerPort = binary.BigEndian.Uint16(transport[2:4])
	case ProtoICMP:
		r.InnerID = binary.BigEndian.Uint16(transport[4:6])
		r.InnerSeq = binary.BigEndian.Uint16(transport[6:8])
	}

	return r, nil
}
