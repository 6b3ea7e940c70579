package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DimBertolami/latestbot/internal/crypto"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts serveOptions

	root := &cobra.Command{
		Use:   "paper-trading",
		Short: "Paper trading engine with an HTTP command API",
		Long: `paper-trading simulates spot trading against live Binance prices
without placing real orders. It keeps a virtual balance, executes market
orders at the resolved price, journals every trade and reports performance.

Running it without a subcommand starts the server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	opts.bind(root)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and trading engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	opts.bind(serveCmd)

	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print a random key for PAPER_ENCRYPTION_KEY",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	root.AddCommand(serveCmd, keygenCmd)
	return root
}
