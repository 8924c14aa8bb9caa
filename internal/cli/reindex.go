package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewReindexCmd creates the 'reindex' command.
func NewReindexCmd() *cobra.Command {
	var (
		failed bool
		list   bool
	)

	cmd := &cobra.Command{
		Use:   "reindex [screenshot-id...]",
		Short: "Re-run analysis for screenshots",
		Long: `Queue screenshots for analysis again. The new entry replaces the old
one, and any recorded failure is cleared. Useful after adding rules or
when the analysis service was down for longer than the retry budget.`,
		Example: `  monitome reindex 01JNX8Q4M3S0V1W2X3Y4Z5A6B7
  monitome reindex --failed
  monitome reindex --list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !failed && !list && len(args) == 0 {
				return fmt.Errorf("give screenshot ids, --failed or --list")
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if failed || list {
				failures, err := client.Failures(cmd.Context(), 1000)
				if err != nil {
					return err
				}
				if list {
					if len(failures) == 0 {
						fmt.Fprintln(out, "No indexing failures.")
					}
					for _, f := range failures {
						fmt.Fprintf(out, "%s  %s  after %d attempts: %s\n",
							f.ScreenshotID,
							color.New(color.Faint).Sprint(f.FailedAt.Local().Format("2006-01-02 15:04")),
							f.Attempts, f.Reason)
					}
					if !failed {
						return nil
					}
				}
				for _, f := range failures {
					args = append(args, f.ScreenshotID)
				}
			}

			queued := 0
			for _, id := range args {
				if err := client.Reindex(cmd.Context(), id); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %v\n", color.New(color.FgRed).Sprint("✗"), id, err)
					continue
				}
				queued++
			}
			fmt.Fprintf(out, "%s Queued %d of %d screenshots\n", color.New(color.FgGreen).Sprint("✓"), queued, len(args))
			if queued < len(args) {
				return fmt.Errorf("%d screenshots could not be queued", len(args)-queued)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "Reindex every screenshot whose analysis failed")
	cmd.Flags().BoolVar(&list, "list", false, "List indexing failures")

	return cmd
}
