package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codexmux/codexmux/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored auth profiles",
	Long: `List all auth profiles in the credentials directory.

Corrupt records are skipped silently; the listing itself never fails.

Examples:
  codexmux list                   # Table of all profiles
  codexmux list --format json     # Full summaries as JSON`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().String("format", "table", "output format: table, json")
}

func runList(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	summaries := newStore().List()
	active := newActivator().CurrentProfileID()

	return renderProfiles(cmd.OutOrStdout(), format, summaries, active)
}

func renderProfiles(w io.Writer, format string, summaries []store.Summary, active string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		data, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil

	case "table", "":
		if len(summaries) == 0 {
			fmt.Fprintln(w, "No profiles found.")
			return nil
		}

		if isTerminal() {
			fmt.Fprintln(w, "Auth Profiles")
			fmt.Fprintln(w, "────────────────────────────────────────────────────────────────")
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tACTIVE\tEMAIL\tPLAN\tACCOUNT\tLAST REFRESH")
		for _, s := range summaries {
			marker := ""
			if s.ID == active {
				marker = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				s.ID,
				marker,
				orDash(s.Email),
				orDash(s.PlanType),
				orDash(s.AccountID),
				orDash(s.LastRefresh),
			)
		}
		return tw.Flush()

	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
