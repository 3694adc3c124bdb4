// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pathprobe/pathprobe/internal/logger"
	"github.com/pathprobe/pathprobe/internal/probe"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// conn is the send/receive capability the session drivers are built on.
type conn interface {
	SetTTL(ttl int) error
	Send(pkt []byte, dst net.IP) (time.Time, error)
	AwaitReply(timeout time.Duration) (probe.Reply, time.Time, error)
	Close() error
}

// terminal reports whether the reply signals that the destination itself
// answered: an echo reply for ICMP probes, a destination-unreachable for
// UDP probes landing on an unused port.
func terminal(p Protocol, r probe.Reply, dst net.IP) bool {
	if !r.From.Equal(dst) {
		return false
	}
	switch p {
	case ProtocolICMP:
		return r.Type == probe.TypeEchoReply
	case ProtocolUDP:
		return r.Type == probe.TypeDestUnreachable
	default:
		return false
	}
}

// wrapError wraps an error with a message and logs it together with the
// given key-value attributes. It also records the error in the current
// OpenTelemetry span. The attributes stay out of the error message.
func wrapError(ctx context.Context, err error, msg string, args ...any) error {
	if err == nil {
		return nil
	}
	log := logger.FromContext(ctx)
	span := trace.SpanFromContext(ctx)
	caser := cases.Title(language.English)

	log.ErrorContext(ctx, caser.String(msg), append([]any{"error", err}, args...)...)
	span.SetStatus(codes.Error, msg)
	span.RecordError(err)
	return fmt.Errorf("%s: %w", msg, err)
}
