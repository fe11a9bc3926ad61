package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkarlin/mailpilot/internal/display"
	"github.com/mkarlin/mailpilot/internal/schedule"
)

var (
	slotsDays     int
	slotsDuration int
)

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Show free calendar slots within working hours",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cal, err := buildCalendar(ctx)
		if err != nil {
			return err
		}

		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		hours, err := cfg.Hours()
		if err != nil {
			return err
		}

		now := time.Now().In(loc)
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		end := start.AddDate(0, 0, slotsDays)

		busy, err := cal.Busy(ctx, start, end)
		if err != nil {
			return err
		}

		slots, err := schedule.FindFreeSlots(schedule.Request{
			Busy:            busy,
			StartDate:       start,
			EndDate:         end,
			Hours:           hours,
			DurationMinutes: slotsDuration,
			Location:        loc,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(slots)
		}
		display.Slots(slots)
		return nil
	},
}

func init() {
	slotsCmd.Flags().IntVar(&slotsDays, "days", 7, "Days to look ahead")
	slotsCmd.Flags().IntVar(&slotsDuration, "duration", schedule.DefaultDuration, "Slot length in minutes")
	rootCmd.AddCommand(slotsCmd)
}
