// Copyright 2025 Nevermined AG
// SPDX-License-Identifier: Apache-2.0

// Command paymentsd runs a payment-metered agent server with the built-in
// echo executor. It exists for development and interoperability testing;
// real agents embed the daemon package with their own executor.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nevermined-io/payments-go/server/daemon"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	configPath string
	listenAddr string
)

var rootCmd = &cobra.Command{
	Use:           "paymentsd",
	Short:         "Payment-metered agent server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to TOML config file")
	rootCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (overrides config)")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Addr = listenAddr
	}

	d, err := daemon.New(cfg, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}

func main() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
