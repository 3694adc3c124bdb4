// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

// Package traceroute discovers the router path to a destination by sending
// TTL-incrementing probe waves and collecting the ICMP errors they elicit.
//
// Two drivers share the same packet codec and raw-socket capability from
// the probe package:
//
//   - [Session] probes serially: each probe is sent and its reply awaited
//     before the next one leaves.
//   - [Coordinator] overlaps transmission and collection with a sender and
//     a receiver goroutine over lock-guarded shared state, correlating
//     replies to probes by a key embedded in every outgoing packet.
//
// Probes are either ICMP echo requests or UDP datagrams aimed at unused
// high ports, selected with [Protocol]. Intermediate routers answer with
// time-exceeded errors; the destination answers with an echo reply (ICMP)
// or a port-unreachable error (UDP), which terminates the TTL walk.
//
// Both drivers emit one [HopRecord] per probed TTL. Neither retries lost
// probes: a probe without a matching reply within the timeout stays
// unresolved for its TTL.
package traceroute
