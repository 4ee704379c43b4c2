package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Inspect route days",
}

var calendarNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the next route days, skipping weekends and holidays",
	RunE: func(cmd *cobra.Command, _ []string) error {
		count, _ := cmd.Flags().GetInt("count")
		fromFlag, _ := cmd.Flags().GetString("from")

		walker, err := newWalker()
		if err != nil {
			return err
		}

		from, err := parseDay(fromFlag)
		if err != nil {
			return err
		}
		var days []time.Time
		if from == nil {
			days = walker.DaysAhead(walker.Today(), count)
		} else {
			// Start on from itself when it is a route day.
			days = walker.DaysAhead(from.AddDate(0, 0, -1), count)
		}

		formatDays(os.Stdout, days)
		return nil
	},
}

func formatDays(w io.Writer, days []time.Time) {
	for _, d := range days {
		fmt.Fprintf(w, "%s  %s\n", d.Format("2006-01-02 15:04"), d.Weekday())
	}
}

func init() {
	calendarNextCmd.Flags().Int("count", 5, "number of route days to print")
	calendarNextCmd.Flags().String("from", "", "first candidate day, YYYY-MM-DD (default: configured start)")
	calendarCmd.AddCommand(calendarNextCmd)
	rootCmd.AddCommand(calendarCmd)
}
