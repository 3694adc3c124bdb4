// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires the OpenTelemetry tracer provider used by the
// probing engine's spans.
package telemetry

import (
	"context"
	"fmt"

	"github.com/pathprobe/pathprobe/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config holds the tracing configuration.
type Config struct {
	// Enabled turns span export on. When disabled the engine's spans
	// stay no-ops.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}

// InitTracing installs a tracer provider exporting pretty-printed spans
// to stdout and returns its shutdown function. When tracing is disabled
// it installs nothing and the returned shutdown is a no-op.
func InitTracing(ctx context.Context, cfg Config, version string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	log := logger.FromContext(ctx)

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("pathprobe"),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	log.DebugContext(ctx, "Tracing initialized")

	return tp.Shutdown, nil
}
