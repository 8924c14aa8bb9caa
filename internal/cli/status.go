package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/khanglvm/monitome/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewStatusCmd creates the 'status' command.
func NewStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recording state and indexing backlog",
		Long:  `Query the running daemon for its recording toggles, today's capture count and indexing queue.`,
		Example: `  monitome status
  monitome status --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			st, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func printStatus(w io.Writer, st *pipeline.Status) {
	fmt.Fprintf(w, "Recording:       %s\n", onOff(st.State.CaptureEnabled))
	fmt.Fprintf(w, "Event triggers:  %s\n", onOff(st.State.EventTriggersEnabled))
	fmt.Fprintf(w, "  periodic:      %s\n", activeIdle(st.PeriodicActive))
	fmt.Fprintf(w, "  events:        %s\n", activeIdle(st.EventsActive))
	fmt.Fprintf(w, "Today:           %d captures\n", st.State.TodayCount)
	fmt.Fprintf(w, "Indexed:         %d entries\n", st.Indexed)

	failed := fmt.Sprint(st.Queue.Failed)
	if st.Queue.Failed > 0 {
		failed = color.New(color.FgRed).Sprint(failed)
	}
	fmt.Fprintf(w, "Queue:           %d pending, %s failed\n", st.Queue.Pending, failed)
	fmt.Fprintf(w, "Analysis:        %s\n", st.Sidecar)

	if !st.Permissions.Capture {
		fmt.Fprintf(w, "%s screen capture permission is not granted\n", color.New(color.FgRed).Sprint("✗"))
	}
	if !st.Permissions.Accessibility {
		fmt.Fprintf(w, "%s accessibility permission is not granted; window titles may be missing\n", color.New(color.FgYellow).Sprint("!"))
	}
}

func onOff(on bool) string {
	if on {
		return color.New(color.FgGreen).Sprint("on")
	}
	return color.New(color.FgYellow).Sprint("off")
}

func activeIdle(active bool) string {
	if active {
		return "active"
	}
	return "idle"
}
