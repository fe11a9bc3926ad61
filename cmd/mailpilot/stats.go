package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mkarlin/mailpilot/internal/display"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stored email and action counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		actionCounts, err := st.ActionCountByType()
		if err != nil {
			return err
		}

		lastRun := st.GetPreference("last_run", "")

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{
				"emails":   st.EmailCount(),
				"threads":  st.ThreadCount(),
				"actions":  actionCounts,
				"last_run": lastRun,
			})
		}

		display.Header("Mailpilot stats")
		fmt.Printf("  emails:  %d\n", st.EmailCount())
		fmt.Printf("  threads: %d\n", st.ThreadCount())
		if lastRun != "" {
			fmt.Printf("  last run: %s\n", lastRun)
		}

		if len(actionCounts) > 0 {
			fmt.Println("  actions:")
			names := make([]string, 0, len(actionCounts))
			for name := range actionCounts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("    %-10s %d\n", name, actionCounts[name])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
