package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codexmux/codexmux/internal/activate"
)

var activateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Make a profile the active one",
	Long: fmt.Sprintf(`Activate the given profile: its record is snapshotted into the
well-known auth.json location and its id recorded as current.

The reserved id %q clears the current credentials instead, for the
alternate credential backend.

Examples:
  codexmux activate work
  codexmux activate %s`, activate.Sentinel, activate.Sentinel),
	Args: cobra.ExactArgs(1),
	RunE: runActivate,
}

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the active profile id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id := newActivator().CurrentProfileID()
		if id == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "(none)")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(currentCmd)
}

func runActivate(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := newActivator().Activate(id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Activated %s\n", id)
	return nil
}
