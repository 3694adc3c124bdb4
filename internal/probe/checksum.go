// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package probe

// Checksum computes the internet checksum (RFC 1071) over data.
// The result is the 16-bit one's complement of the one's complement
// sum of the input interpreted as big-endian 16-bit words, ready to be
// stored big-endian into an ICMP header.
func Checksum(data []byte) uint16 {
	var sum uint32

	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}

	// Odd trailing byte is padded with a zero low byte.
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}

	// Fold carries back into the low 16 bits until none remain.
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}

	return ^uint16(sum)
}

// ValidSum reports whether data, including its embedded checksum field,
// sums to the all-ones value required by RFC 1071.
func ValidSum(data []byte) bool {
	var sum uint32

	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}

	return uint16(sum) == 0xffff
}
