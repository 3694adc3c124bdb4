// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pathprobe/pathprobe/internal/logger"
	"github.com/pathprobe/pathprobe/internal/report"
	"github.com/pathprobe/pathprobe/internal/telemetry"
	"github.com/pathprobe/pathprobe/internal/traceroute"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// NewCmdTraceroute creates the traceroute subcommand
func NewCmdTraceroute() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "traceroute <host>",
		Aliases: []string{"t"},
		Short:   "Discover the router path to a host",
		Args:    cobra.ExactArgs(1),
		RunE:    runTraceroute,
	}

	defaults := traceroute.DefaultConfig()
	cmd.Flags().StringP("protocol", "p", defaults.Protocol.String(), "probe protocol (udp or icmp)")
	cmd.Flags().DurationP("timeout", "t", defaults.Timeout, "per-probe receive timeout")
	cmd.Flags().Int("max-hops", defaults.MaxTTL, "largest TTL probed")
	cmd.Flags().Bool("concurrent", false, "overlap probe sending with reply collection")
	cmd.Flags().StringP("output", "o", "text", "output format (text, json or yaml)")
	_ = viper.BindPFlag("traceroute.protocol", cmd.Flags().Lookup("protocol"))
	_ = viper.BindPFlag("traceroute.timeout", cmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("traceroute.maxHops", cmd.Flags().Lookup("max-hops"))
	_ = viper.BindPFlag("traceroute.concurrent", cmd.Flags().Lookup("concurrent"))
	_ = viper.BindPFlag("traceroute.output", cmd.Flags().Lookup("output"))

	return cmd
}

// runner is implemented by both traceroute drivers.
type runner interface {
	Run(ctx context.Context, dst net.IP, emit func(traceroute.HopRecord)) error
	Reached() bool
	GetCollectors() []prometheus.Collector
}

func runTraceroute(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.IntoContext(ctx, logger.NewLogger())

	shutdown, err := telemetry.InitTracing(ctx, telemetry.Config{Enabled: viper.GetBool("tracing.enabled")}, version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	cfg := traceroute.DefaultConfig()
	cfg.Protocol = traceroute.Protocol(viper.GetString("traceroute.protocol"))
	cfg.Timeout = viper.GetDuration("traceroute.timeout")
	cfg.MaxTTL = viper.GetInt("traceroute.maxHops")
	if err := cfg.Validate(); err != nil {
		return err
	}

	output := viper.GetString("traceroute.output")
	if output != "text" && output != "json" && output != "yaml" {
		return fmt.Errorf("invalid output format: %s, must be text, json or yaml", output)
	}

	host := args[0]
	addr, err := resolveHost(host)
	if err != nil {
		return err
	}

	var r runner
	if viper.GetBool("traceroute.concurrent") {
		r = traceroute.NewCoordinator(cfg)
	} else {
		r = traceroute.NewSession(cfg)
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(r.GetCollectors()...)

	rep := report.New(cmd.OutOrStdout())
	var hops []traceroute.HopRecord
	emit := rep.Hop
	if output != "text" {
		emit = func(hop traceroute.HopRecord) { hops = append(hops, hop) }
	} else {
		rep.TracerouteHeader(cfg.Protocol, host, addr)
	}

	err = r.Run(ctx, addr, emit)
	logMetrics(ctx, registry)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		return err
	}

	switch output {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hops)
	case "yaml":
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(hops)
	default:
		return nil
	}
}
