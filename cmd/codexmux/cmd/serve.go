package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codexmux/codexmux/internal/api"
	"github.com/codexmux/codexmux/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local HTTP API server",
	Long: `Start a localhost-only HTTP server exposing the profile store over a
REST API, for web UIs and dashboards.

ENDPOINTS:
  GET  /health                 Health check (no auth)
  GET  /auth                   List profile summaries
  POST /auth/refresh/{id}      Refresh a profile's tokens
  POST /refresh-token/{id}     Legacy alias for the above
  GET  /auth/current           Active profile id
  POST /auth/activate/{id}     Activate a profile
  GET  /auth/{id}/limits       Rate-limit snapshot
  GET  /auth/{id}/history      Recent refresh attempts
  GET  /events                 SSE stream for live updates

AUTHENTICATION:
  All endpoints except /health require bearer token authentication. The
  token is auto-generated and stored next to the config file with 0600
  permissions. Include the header: Authorization: Bearer <token>

Examples:
  codexmux serve                    # Start on the configured port
  codexmux serve --port 8080        # Use a custom port
  codexmux serve --show-token       # Print the API token and exit`,
	RunE: runServe,
}

var (
	servePort      int
	serveVerbose   bool
	serveShowToken bool
	serveJSONLogs  bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "API server port (default from config)")
	serveCmd.Flags().BoolVar(&serveVerbose, "verbose", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&serveShowToken, "show-token", false, "Print API token and exit")
	serveCmd.Flags().BoolVar(&serveJSONLogs, "json", false, "Output logs in JSON format")
}

func runServe(cmd *cobra.Command, args []string) error {
	logLevel := slog.LevelInfo
	if serveVerbose {
		logLevel = slog.LevelDebug
	}

	var logHandler slog.Handler
	logOpts := &slog.HandlerOptions{Level: logLevel}
	if serveJSONLogs {
		logHandler = slog.NewJSONHandler(os.Stderr, logOpts)
	} else {
		logHandler = slog.NewTextHandler(os.Stderr, logOpts)
	}
	logger := slog.New(logHandler)

	history := openHistory()
	defer history.Close()

	handlers := api.NewHandlers(newStore(), newRefresher(history), newActivator(), newUsageClient(), history)

	port := servePort
	if port == 0 {
		port = cfg.Port
	}
	server, err := api.NewServer(api.Config{
		Port:      port,
		TokenPath: cfg.TokenPath,
		Logger:    logger,
	}, handlers)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	if serveShowToken {
		fmt.Println(server.Token())
		return nil
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Forward credentials-directory changes to SSE clients so dashboards
	// pick up external edits without polling.
	if w, err := watcher.New(cfg.CredentialsDir, 500*time.Millisecond, logger); err != nil {
		logger.Warn("credentials watcher unavailable", "error", err)
	} else {
		go w.Run(ctx)
		go func() {
			for ev := range w.Events() {
				server.Emit("auth_changed", map[string]string{"id": ev.ProfileID, "op": ev.Op})
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("codexmux API server started\n")
	fmt.Printf("  Address: http://127.0.0.1:%d\n", server.Port())
	fmt.Printf("  Token:   %s...\n", server.Token()[:8])
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	fmt.Println("Server stopped.")
	return nil
}
