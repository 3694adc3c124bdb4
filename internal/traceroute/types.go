// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"time"
)

// Protocol selects the probe datagrams a traceroute is built from.
type Protocol string

const (
	// ProtocolICMP probes with echo requests; the destination answers
	// with an echo reply.
	ProtocolICMP Protocol = "icmp"
	// ProtocolUDP probes unused high ports; the destination answers
	// with a port-unreachable error.
	ProtocolUDP Protocol = "udp"
)

func (p Protocol) String() string {
	switch p {
	case ProtocolICMP, ProtocolUDP:
		return string(p)
	default:
		return "unknown"
	}
}

func (p Protocol) IsValid() bool {
	valid := []Protocol{ProtocolICMP, ProtocolUDP}
	return slices.Contains(valid, p)
}

const (
	// numProbes is the number of probes sent per TTL.
	numProbes = 3
	// udpBasePort is the base for the incrementing probe destination
	// ports, chosen above the range of commonly listening services.
	udpBasePort = 33439
	// maxPayloadLen bounds the probe payload size.
	maxPayloadLen = 1400
)

// Config is the configuration of one traceroute run.
type Config struct {
	// Protocol is the probe protocol, ICMP or UDP.
	Protocol Protocol `json:"protocol" yaml:"protocol" mapstructure:"protocol"`
	// Timeout is the per-probe receive timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	// MaxTTL is the largest TTL probed before giving up on the destination.
	MaxTTL int `json:"maxHops" yaml:"maxHops" mapstructure:"maxHops"`
	// PayloadLen is the probe payload length in bytes.
	PayloadLen int `json:"payloadLen" yaml:"payloadLen" mapstructure:"payloadLen"`
	// Delay is the pause between consecutive sends of the concurrent
	// coordinator, keeping probe bursts off the wire.
	Delay time.Duration `json:"delay" yaml:"delay" mapstructure:"delay"`
}

func (c *Config) Validate() error {
	if !c.Protocol.IsValid() {
		return fmt.Errorf("invalid protocol: %s, must be one of %s, %s", c.Protocol, ProtocolICMP, ProtocolUDP)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be greater than 0")
	}
	if c.MaxTTL <= 0 || c.MaxTTL > 255 {
		return fmt.Errorf("invalid maxHops: %d, must be between 1 and 255", c.MaxTTL)
	}
	if c.PayloadLen < 0 || c.PayloadLen > maxPayloadLen {
		return fmt.Errorf("invalid payload length: %d", c.PayloadLen)
	}
	if c.Delay < 0 {
		return errors.New("delay cannot be negative")
	}
	return nil
}

// DefaultConfig returns the classic traceroute parameters.
func DefaultConfig() Config {
	return Config{
		Protocol:   ProtocolUDP,
		Timeout:    2 * time.Second,
		MaxTTL:     30,
		PayloadLen: 52,
		Delay:      50 * time.Millisecond,
	}
}

// HopRecord collects the probes of one TTL. Keys holds the correlation
// keys in send order; Addrs and RTTs only have entries for keys whose
// reply was received and matched.
type HopRecord struct {
	TTL  int
	Keys []uint16
	// Addrs maps a correlation key to the hop that answered the probe.
	Addrs map[uint16]net.IP
	// RTTs maps a correlation key to the probe's round-trip time.
	RTTs map[uint16]time.Duration
}

// newHopRecord creates an empty record for the given TTL.
func newHopRecord(ttl int) *HopRecord {
	return &HopRecord{
		TTL:   ttl,
		Addrs: make(map[uint16]net.IP),
		RTTs:  make(map[uint16]time.Duration),
	}
}
