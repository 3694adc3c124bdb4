// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// maxDatagram is the receive buffer size for raw socket reads.
const maxDatagram = 65535

// ErrTimeout is returned by AwaitReply when no datagram arrived
// within the bounded wait.
var ErrTimeout = errors.New("receive timed out")

// errNotPermitted is returned when the process lacks the privilege to
// open a raw ICMP socket (CAP_NET_RAW or root).
var errNotPermitted = errors.New("no NET_RAW capabilities, raw ICMP socket not available")

// Conn is a raw ICMP socket shared by one probing session. It implements
// the send and bounded-receive primitives the session drivers are built on.
//
// Sends and receives may be issued from different goroutines; the
// kernel serializes the socket operations themselves.
type Conn struct {
	fd int
}

// Listen opens a raw IPv4 ICMP socket.
func Listen() (*Conn, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_ICMP)
	if err != nil {
		if errors.Is(err, unix.EPERM) {
			return nil, errNotPermitted
		}
		return nil, fmt.Errorf("failed to create raw ICMP socket: %w", err)
	}
	return &Conn{fd: fd}, nil
}

// SetTTL sets the outgoing TTL of the socket. It applies to all
// subsequent sends until changed again.
func (c *Conn) SetTTL(ttl int) error {
	if err := unix.SetsockoptInt(c.fd, unix.IPPROTO_IP, unix.IP_TTL, ttl); err != nil {
		return fmt.Errorf("failed to set IP_TTL to %d: %w", ttl, err)
	}
	return nil
}

// Send writes an ICMP packet to the destination and returns the send
// timestamp. The kernel builds the IP header.
func (c *Conn) Send(pkt []byte, dst net.IP) (time.Time, error) {
	sa, err := sockaddr(dst)
	if err != nil {
		return time.Time{}, err
	}
	if err := unix.Sendto(c.fd, pkt, 0, sa); err != nil {
		return time.Time{}, fmt.Errorf("failed to send ICMP packet to %s: %w", dst, err)
	}
	return time.Now(), nil
}

// AwaitReply blocks for up to timeout waiting for one ICMP datagram and
// returns the parsed reply with its receive timestamp. On expiry it
// returns ErrTimeout; a malformed datagram yields ErrShortPacket. The
// wait is never interrupted early, callers observe cancellation between
// calls.
func (c *Conn) AwaitReply(timeout time.Duration) (Reply, time.Time, error) {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return Reply{}, time.Time{}, fmt.Errorf("failed to set receive timeout: %w", err)
	}

	buf := make([]byte, maxDatagram)
	n, _, err := unix.Recvfrom(c.fd, buf, 0)
	at := time.Now()
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
			return Reply{}, at, ErrTimeout
		}
		return Reply{}, at, fmt.Errorf("failed to read from raw socket: %w", err)
	}

	reply, err := ParseReply(buf[:n])
	if err != nil {
		return Reply{}, at, err
	}
	return reply, at, nil
}

// Close releases the socket.
func (c *Conn) Close() error {
	return unix.Close(c.fd)
}

// SendUDP sends one UDP probe datagram of payloadLen '0' bytes to
// dst:port with the given TTL and returns the send timestamp. A fresh
// datagram socket is used per probe and closed before returning; the
// ICMP error the probe elicits arrives on the session's raw socket.
func SendUDP(dst net.IP, port, ttl, payloadLen int) (time.Time, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to create UDP socket: %w", err)
	}
	defer func() { _ = unix.Close(fd) }()

	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TTL, ttl); err != nil {
		return time.Time{}, fmt.Errorf("failed to set IP_TTL to %d: %w", ttl, err)
	}

	sa, err := sockaddr(dst)
	if err != nil {
		return time.Time{}, err
	}
	sa.Port = port

	payload := make([]byte, payloadLen)
	for i := range payload {
		payload[i] = '0'
	}
	if err := unix.Sendto(fd, payload, 0, sa); err != nil {
		return time.Time{}, fmt.Errorf("failed to send UDP probe to %s:%d: %w", dst, port, err)
	}
	return time.Now(), nil
}

// sockaddr converts an IPv4 address to a unix.SockaddrInet4.
func sockaddr(ip net.IP) (*unix.SockaddrInet4, error) {
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("not an IPv4 address: %s", ip)
	}
	sa := &unix.SockaddrInet4{}
	copy(sa.Addr[:], v4)
	return sa, nil
}
