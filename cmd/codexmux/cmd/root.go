package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codexmux/codexmux/internal/activate"
	"github.com/codexmux/codexmux/internal/config"
	"github.com/codexmux/codexmux/internal/db"
	"github.com/codexmux/codexmux/internal/refresh"
	"github.com/codexmux/codexmux/internal/store"
	"github.com/codexmux/codexmux/internal/usage"
	"github.com/codexmux/codexmux/internal/version"
)

var (
	cfgPath string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "codexmux",
	Short: "Manage Codex OAuth credential profiles on this machine",
	Long: `codexmux manages a set of locally stored Codex auth profiles, switches
which one is active, refreshes expired access tokens and reports provider-side
rate-limit usage.

Profiles live as <id>.auth.json records in the credentials directory
(~/.codex by default). Activating a profile snapshots its record into the
well-known auth.json location and records the active id.`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default "+config.DefaultPath()+")")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func newStore() *store.Store {
	return store.New(cfg.CredentialsDir)
}

func newActivator() *activate.Activator {
	return activate.New(newStore())
}

func newUsageClient() *usage.Client {
	return usage.NewClient(cfg.ChatGPTBaseURL)
}

// openHistory opens the refresh-history database. A nil result means history
// is unavailable; callers treat that as a degraded mode, not an error.
func openHistory() *db.DB {
	h, err := db.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: history database unavailable: %v\n", err)
		return nil
	}
	return h
}

func newRefresher(history *db.DB) *refresh.Refresher {
	opts := refresh.Options{
		TokenURL: cfg.TokenURL,
		Audit:    refresh.NewAudit(cfg.AuditDir),
	}
	if history != nil {
		opts.History = history
	}
	return refresh.New(newStore(), opts)
}
