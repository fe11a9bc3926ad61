package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkarlin/mailpilot/internal/display"
)

var runLimit int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the inbox once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if runLimit > 0 {
			cfg.BatchLimit = runLimit
		}

		proc, err := buildProcessor(ctx)
		if err != nil {
			return err
		}

		results, err := proc.ProcessInbox(ctx)
		if err != nil {
			return err
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(results)
		}

		if len(results) == 0 {
			if !quietFlag {
				fmt.Println("Inbox clear, nothing unread.")
			}
			return nil
		}

		display.Header(fmt.Sprintf("Processed %d email(s)", len(results)))
		for _, r := range results {
			display.Result(r)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "Max emails to process (overrides config)")
	rootCmd.AddCommand(runCmd)
}
