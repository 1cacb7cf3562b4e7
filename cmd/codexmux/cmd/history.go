package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show recent refresh attempts for a profile",
	Long: `Show the refresh attempts recorded for a profile, newest first.

Examples:
  codexmux history work
  codexmux history work --limit 10`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 20, "maximum attempts to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	id := args[0]
	limit, _ := cmd.Flags().GetInt("limit")

	history := openHistory()
	if history == nil {
		return fmt.Errorf("history database unavailable")
	}
	defer history.Close()

	events, err := history.ListRefreshes(id, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintf(out, "No refresh attempts recorded for %s.\n", id)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ATTEMPTED AT\tOUTCOME\tDETAIL")
	for _, ev := range events {
		detail := ev.Detail
		if detail == "" {
			detail = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ev.AttemptedAt.Format(time.RFC3339), ev.Outcome, truncate(detail, 60))
	}
	return tw.Flush()
}
