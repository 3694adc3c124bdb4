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

	"github.com/pathprobe/pathprobe/internal/logger"
	"github.com/pathprobe/pathprobe/internal/webserver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewCmdServe creates the serve subcommand
func NewCmdServe() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"w"},
		Short:   "Run a simple single-file web server",
		RunE:    runServe,
	}

	cmd.Flags().IntP("port", "p", 8080, "port to listen on")
	cmd.Flags().String("root", ".", "directory to serve files from")
	_ = viper.BindPFlag("serve.port", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("serve.root", cmd.Flags().Lookup("root"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.IntoContext(ctx, logger.NewLogger())

	cfg := webserver.Config{
		Port: viper.GetInt("serve.port"),
		Root: viper.GetString("serve.root"),
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	err := webserver.New(cfg, registry).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
