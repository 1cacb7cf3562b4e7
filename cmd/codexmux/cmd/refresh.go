package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codexmux/codexmux/internal/store"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <id>",
	Short: "Refresh a profile's access token",
	Long: `Exchange the profile's refresh token for new tokens and write them
back to its auth record. The raw provider response is kept in the audit
directory and the attempt is recorded in the history database.

Examples:
  codexmux refresh work
  codexmux refresh personal --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	refreshCmd.Flags().String("format", "table", "output format: table, json")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	id := args[0]
	format, _ := cmd.Flags().GetString("format")

	history := openHistory()
	defer history.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	summary, err := newRefresher(history).Refresh(ctx, id)
	if err != nil {
		return err
	}

	if format == "json" {
		return renderProfiles(cmd.OutOrStdout(), "json", []store.Summary{summary}, "")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %s (last refresh %s)\n", id, orDash(summary.LastRefresh))
	return nil
}
