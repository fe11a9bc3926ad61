package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkarlin/mailpilot/internal/display"
)

var actionsCmd = &cobra.Command{
	Use:   "actions <email-id>",
	Short: "Show the action audit trail for an email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := st.ActionsForEmail(args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(records)
		}

		if len(records) == 0 {
			if !quietFlag {
				fmt.Println("No actions recorded for this email.")
			}
			return nil
		}
		display.Actions(records)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(actionsCmd)
}
