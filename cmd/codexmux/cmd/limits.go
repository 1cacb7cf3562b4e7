package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codexmux/codexmux/internal/usage"
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Fetch rate-limit usage for stored profiles",
	Long: `Fetch rate-limit and usage data from the provider for every stored
profile (or one profile with --profile) and show per-window utilization plus
the global weekly summary every dashboard shares.

Profiles are fetched in parallel; a failure on one profile never hides the
others.

Examples:
  codexmux limits                 # All profiles
  codexmux limits --profile work  # One profile
  codexmux limits --format json   # Output as JSON`,
	RunE: runLimits,
}

func init() {
	rootCmd.AddCommand(limitsCmd)
	limitsCmd.Flags().StringP("profile", "p", "", "specific profile to check")
	limitsCmd.Flags().String("format", "table", "output format: table, json")
}

func runLimits(cmd *cobra.Command, args []string) error {
	profileArg, _ := cmd.Flags().GetString("profile")
	format, _ := cmd.Flags().GetString("format")

	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	st := newStore()
	client := newUsageClient()
	out := cmd.OutOrStdout()

	creds := make(map[string]usage.Credentials)
	var ids []string
	if profileArg != "" {
		ids = []string{profileArg}
	} else {
		for _, s := range st.List() {
			ids = append(ids, s.ID)
		}
	}

	credErrs := make(map[string]error)
	for _, id := range ids {
		auth, err := st.Load(id)
		if err != nil {
			credErrs[id] = err
			continue
		}
		c, err := usage.CredentialsFor(id, auth)
		if err != nil {
			credErrs[id] = err
			continue
		}
		creds[id] = c
	}

	results := client.FetchAll(ctx, creds)
	for id, err := range credErrs {
		results = append(results, usage.ProfileLimits{ID: id, Err: err})
	}

	return renderLimits(out, format, ids, results)
}

func renderLimits(w io.Writer, format string, ids []string, results []usage.ProfileLimits) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil

	case "table", "":
		if len(results) == 0 {
			fmt.Fprintln(w, "No profiles found.")
			return nil
		}

		now := time.Now()
		if isTerminal() {
			fmt.Fprintln(w, "Rate Limit Usage")
			fmt.Fprintln(w, "────────────────────────────────────────────────────────────────")
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PROFILE\tPLAN\t5H USED\tWEEKLY USED\tWEEKLY ELAPSED\tSTATUS")
		for _, r := range results {
			plan := "-"
			primary := "-"
			weekly := "-"
			elapsed := "-"
			status := "ok"

			if r.Err != nil {
				status = "error: " + truncate(r.Err.Error(), 40)
			}
			if r.Snapshot != nil {
				if r.Snapshot.PlanType != nil {
					plan = *r.Snapshot.PlanType
				}
				if r.Snapshot.Primary != nil {
					primary = fmt.Sprintf("%.0f%%", r.Snapshot.Primary.UsedPercent)
				}
				if sec := r.Snapshot.Secondary; sec != nil {
					weekly = fmt.Sprintf("%.0f%%", sec.UsedPercent)
					if sec.Valid() {
						elapsed = fmt.Sprintf("%d%%", usage.TimeProgressPercent(sec, now))
					}
				}
			}

			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, plan, primary, weekly, elapsed, status)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		limits := usage.SnapshotMap(results)
		count := usage.GlobalWeeklyAccountCount(ids, limits)
		fmt.Fprintf(w, "\nWeekly (across %d account(s)): used avg %d%%, sum %d%%; elapsed avg %d%%, sum %d%%\n",
			count,
			usage.GlobalUsageAverage(ids, limits),
			usage.GlobalUsageSum(ids, limits),
			usage.GlobalWeeklyElapsedTimeAverage(ids, limits, now),
			usage.GlobalWeeklyElapsedTimeSum(ids, limits, now),
		)
		return nil

	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
