// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pathprobe/pathprobe/internal/logger"
	"github.com/pathprobe/pathprobe/internal/ping"
	"github.com/pathprobe/pathprobe/internal/report"
	"github.com/pathprobe/pathprobe/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewCmdPing creates the ping subcommand
func NewCmdPing() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ping <host>",
		Aliases: []string{"p"},
		Short:   "Send ICMP echo probes to a host",
		Args:    cobra.ExactArgs(1),
		RunE:    runPing,
	}

	cmd.Flags().Int("count", ping.DefaultConfig().Count, "number of echo probes to send")
	cmd.Flags().DurationP("timeout", "t", ping.DefaultConfig().Timeout, "per-probe receive timeout")
	_ = viper.BindPFlag("ping.count", cmd.Flags().Lookup("count"))
	_ = viper.BindPFlag("ping.timeout", cmd.Flags().Lookup("timeout"))

	return cmd
}

func runPing(cmd *cobra.Command, args []string) error {
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

	cfg := ping.DefaultConfig()
	cfg.Count = viper.GetInt("ping.count")
	cfg.Timeout = viper.GetDuration("ping.timeout")
	if err := cfg.Validate(); err != nil {
		return err
	}

	host := args[0]
	addr, err := resolveHost(host)
	if err != nil {
		return err
	}

	pinger := ping.New(cfg)
	registry := prometheus.NewRegistry()
	registry.MustRegister(pinger.GetCollectors()...)

	rep := report.New(cmd.OutOrStdout())
	rep.PingHeader(host, addr)

	summary, err := pinger.Run(ctx, addr, rep.PingResult)
	// The summary covers whatever was collected, also after an interrupt.
	rep.PingSummary(host, summary)
	logMetrics(ctx, registry)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
