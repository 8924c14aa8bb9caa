package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/khanglvm/monitome/internal/activity"
	"github.com/spf13/cobra"
)

// NewSummaryCmd creates the 'summary' command.
func NewSummaryCmd() *cobra.Command {
	var (
		date       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize a day of activity",
		Long:  `Ask the analysis service for a narrative digest of one day's indexed activity.`,
		Example: `  monitome summary
  monitome summary --date 2026-03-04`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if date == "" {
				date = time.Now().Format(activity.DateLayout)
			}
			if _, err := time.Parse(activity.DateLayout, date); err != nil {
				return fmt.Errorf("invalid --date %q: use YYYY-MM-DD", date)
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			sum, err := client.Summary(cmd.Context(), date)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, sum)
			}

			bold := color.New(color.Bold)
			fmt.Fprintln(out, bold.Sprint(date))
			fmt.Fprintln(out)
			fmt.Fprintln(out, sum.Summary)
			if len(sum.Highlights) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, bold.Sprint("Highlights"))
				for _, h := range sum.Highlights {
					fmt.Fprintf(out, "  • %s\n", h)
				}
			}
			if len(sum.TopApps) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "%s %s\n", bold.Sprint("Top apps:"), strings.Join(sum.TopApps, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "", "Day to summarize (YYYY-MM-DD, default: today)")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}
