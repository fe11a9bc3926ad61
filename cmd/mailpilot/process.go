package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkarlin/mailpilot/internal/display"
)

var processCmd = &cobra.Command{
	Use:   "process <email-id>",
	Short: "Process a single email by Gmail message ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		proc, err := buildProcessor(ctx)
		if err != nil {
			return err
		}

		result, err := proc.ProcessByID(ctx, args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(result)
		}
		display.Result(result)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
