package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/khanglvm/monitome/internal/config"
	"github.com/khanglvm/monitome/internal/control"
	"github.com/khanglvm/monitome/internal/pipeline"
	"github.com/khanglvm/monitome/internal/version"
	"github.com/spf13/cobra"
)

// NewRunCmd creates the 'run' command that starts the capture daemon.
//
// The daemon owns storage, the search index and the capture loop, and
// serves the control API that every other command uses.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the capture daemon",
		Long: `Start the capture daemon in the foreground.

The daemon:
  • captures the screen on a timer while recording is on
  • captures on app and window switches while event triggers are on
  • sends every capture to the analysis service and indexes the result
  • serves the control API used by the other commands and the MCP server

Stop it with Ctrl-C; in-flight analysis finishes before it exits.`,
		Example: `  # Run with the default config
  monitome run

  # Verbose logs as JSON
  monitome run --log-level debug --log-format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runDaemon(cmd.Context(), cfg)
		},
	}

	return cmd
}

// runDaemon runs the pipeline and control API until SIGINT/SIGTERM/SIGQUIT.
func runDaemon(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	logger := slog.Default()

	p, err := pipeline.New(ctx, cfg, pipeline.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	if err := p.Start(ctx); err != nil {
		p.Close()
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	addr := cfg.Control.Addr
	if globals.addr != "" {
		addr = globals.addr
	}
	srv := control.NewServer(p, version.Version, logger)

	// Serve returns when ctx is cancelled or the listener fails.
	serveErr := srv.Serve(ctx, addr)
	if serveErr != nil {
		logger.Error("control API stopped", "error", serveErr)
	} else {
		logger.Info("shutting down gracefully")
	}

	if err := p.Close(); err != nil {
		logger.Error("error during shutdown", "error", err)
		if serveErr == nil {
			return err
		}
	}
	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}

	logger.Info("shutdown complete")
	return nil
}
