package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/khanglvm/monitome/internal/mcp"
	"github.com/khanglvm/monitome/internal/version"
	"github.com/spf13/cobra"
)

// NewMCPCmd creates the 'mcp' command for running the MCP server.
//
// The server speaks stdio and forwards every tool call to the running
// daemon over the control API.
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server (stdio transport)",
		Long: `Start the monitome MCP server using stdio transport.

This server exposes tools to AI clients:
  • activity_search  - Search recorded activity
  • activity_get     - Get one entry by screenshot id
  • activity_summary - Summarize a day
  • capture_now      - Take a screenshot now
  • recording_status - Show recording state and backlog
  • recording_set    - Turn recording or event triggers on/off
  • learn_rule       - Teach the extractor a correction

The daemon ('monitome run') must be running.`,
		Example: `  # Run directly
  monitome mcp

  # Register with an MCP client
  claude mcp add monitome -- monitome mcp`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()

			if _, err := client.Health(ctx); err != nil {
				// Tools report the error per call; the server still starts
				// so the client can see it.
				slog.Warn("daemon not reachable", "error", err)
			}

			server := mcp.NewServer(client, version.Version)
			if err := server.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}

	return cmd
}
