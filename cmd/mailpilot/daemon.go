package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var daemonInterval int

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Poll the inbox continuously",
	Long:  "Runs the triage pipeline on every fetch interval until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if daemonInterval > 0 {
			cfg.FetchInterval = time.Duration(daemonInterval) * time.Second
		}

		proc, err := buildProcessor(ctx)
		if err != nil {
			return err
		}

		if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	daemonCmd.Flags().IntVar(&daemonInterval, "interval", 0, "Fetch interval in seconds (overrides config)")
	rootCmd.AddCommand(daemonCmd)
}
