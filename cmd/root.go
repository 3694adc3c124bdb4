// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/pathprobe/pathprobe/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version of the build, stashed for telemetry
var version string

// NewCmdRoot creates a new root command
func NewCmdRoot(v string) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "pathprobe",
		Short: "Pathprobe, a network-path diagnostic tool",
		Long: "Pathprobe sends ICMP echo and ICMP/UDP traceroute probes over raw sockets\n" +
			"to measure round-trip latency and discover the router path to a host.\n" +
			"It also ships a simple file server and a caching forward proxy.",
		Version: v,
	}

	cobra.OnInitialize(func() {
		initConfig(cfgFile)
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.pathprobe.yaml)")
	rootCmd.PersistentFlags().Bool("tracing", false, "export OpenTelemetry spans to stdout")
	_ = viper.BindPFlag("tracing.enabled", rootCmd.PersistentFlags().Lookup("tracing"))

	return rootCmd
}

// Execute adds all child commands to the root command
// and executes the cmd tree
func Execute(v string) {
	version = v
	cmd := BuildCmd(v)

	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func BuildCmd(v string) *cobra.Command {
	cmd := NewCmdRoot(v)
	cmd.AddCommand(NewCmdPing())
	cmd.AddCommand(NewCmdTraceroute())
	cmd.AddCommand(NewCmdServe())
	cmd.AddCommand(NewCmdProxy())
	return cmd
}

func initConfig(cfgFile string) {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".pathprobe" (without an extension)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pathprobe")
	}

	viper.SetEnvPrefix("pathprobe")
	dotreplacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(dotreplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// logMetrics gathers the collectors of a finished run and writes every
// series to the debug log.
func logMetrics(ctx context.Context, g prometheus.Gatherer) {
	log := logger.FromContext(ctx)

	families, err := g.Gather()
	if err != nil {
		log.ErrorContext(ctx, "Failed to gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			log.DebugContext(ctx, "Metric", "name", mf.GetName(), "value", m.String())
		}
	}
}

// resolveHost resolves a hostname to an IPv4 address. Resolution failure
// aborts a session before any socket is created.
func resolveHost(host string) (net.IP, error) {
	addr, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return nil, fmt.Errorf("invalid hostname %q: %w", host, err)
	}
	return addr.IP, nil
}
