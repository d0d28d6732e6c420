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

	"github.com/nfrund/huddle/internal/app"
	"github.com/nfrund/huddle/internal/config"
	"github.com/nfrund/huddle/internal/logging"
)

const closeTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	Long: `Start the server. Configuration comes from the environment and an optional .env
file; see internal/config for the variables.

Examples:
  huddle serve                       # memory store, in-process pub/sub
  STORE=surreal PUBSUB=redis huddle serve
  huddle serve --port 8080`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logging.New()

	cfg, err := config.New()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	runErr := a.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		slog.Error("Error while closing", "error", err)
	}
	if runErr != nil {
		return runErr
	}
	slog.Info("Server exited gracefully")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Override the PORT setting")
}
