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

	"github.com/pathprobe/pathprobe/internal/helper"
	"github.com/pathprobe/pathprobe/internal/logger"
	"github.com/pathprobe/pathprobe/internal/webserver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewCmdProxy creates the proxy subcommand
func NewCmdProxy() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "proxy",
		Aliases: []string{"x"},
		Short:   "Run a forwarding HTTP proxy with a whole-response cache",
		RunE:    runProxy,
	}

	cmd.Flags().IntP("port", "p", 8000, "port to listen on")
	cmd.Flags().DurationP("timeout", "t", 5*time.Second, "upstream fetch timeout")
	_ = viper.BindPFlag("proxy.port", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("proxy.timeout", cmd.Flags().Lookup("timeout"))

	return cmd
}

func runProxy(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.IntoContext(ctx, logger.NewLogger())

	cfg := webserver.ProxyConfig{
		Port:    viper.GetInt("proxy.port"),
		Timeout: viper.GetDuration("proxy.timeout"),
		Retry: helper.RetryConfig{
			Count: 3,
			Delay: time.Second,
		},
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	err := webserver.NewProxy(cfg).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
