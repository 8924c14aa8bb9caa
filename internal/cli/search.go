package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/khanglvm/monitome/internal/activity"
	"github.com/khanglvm/monitome/internal/search"
	"github.com/spf13/cobra"
)

// NewSearchCmd creates the 'search' command.
func NewSearchCmd() *cobra.Command {
	var (
		tags       []string
		date       string
		app        string
		limit      int
		jsonOutput bool
		yamlOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search recorded activity",
		Long: `Search indexed activity entries. Free text is matched against the
activity description, summary, window and page titles, URLs, files and
commands; filters narrow by tag, day and application.`,
		Example: `  monitome search "pull request"
  monitome search --tag meeting --date 2026-03-04
  monitome search kubernetes --app firefox --yaml`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput && yamlOutput {
				return fmt.Errorf("--json and --yaml are mutually exclusive")
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			res, err := client.Search(cmd.Context(), search.Query{
				Text:  strings.Join(args, " "),
				Tags:  tags,
				Date:  date,
				App:   app,
				Limit: limit,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case jsonOutput:
				return writeJSON(out, res.Entries())
			case yamlOutput:
				return writeYAML(out, res.Entries())
			}
			printEntries(out, res)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Require tag (repeatable)")
	cmd.Flags().StringVarP(&date, "date", "d", "", "Restrict to one day (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&app, "app", "a", "", "Restrict to one application")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	cmd.Flags().BoolVar(&yamlOutput, "yaml", false, "Output as YAML")

	return cmd
}

func printEntries(w io.Writer, res *search.Results) {
	if len(res.Hits) == 0 {
		fmt.Fprintln(w, "No matching activity.")
		return
	}

	dim := color.New(color.Faint)
	bold := color.New(color.Bold)
	for _, e := range res.Entries() {
		fmt.Fprintf(w, "%s  %s  %s\n",
			dim.Sprint(e.CapturedAt.Local().Format("2006-01-02 15:04")),
			bold.Sprint(appName(e)),
			e.Activity)
		if e.Summary != "" && e.Summary != e.Activity {
			fmt.Fprintf(w, "    %s\n", e.Summary)
		}
		if detail := entryDetail(e); detail != "" {
			fmt.Fprintf(w, "    %s\n", dim.Sprint(detail))
		}
		if len(e.Tags) > 0 {
			fmt.Fprintf(w, "    %s\n", color.New(color.FgCyan).Sprint("#"+strings.Join(e.Tags, " #")))
		}
		fmt.Fprintf(w, "    %s\n", dim.Sprint("id: "+e.ScreenshotID))
	}
	fmt.Fprintf(w, "\n%d of %d matches\n", len(res.Hits), res.Total)
}

func appName(e *activity.Entry) string {
	if e.App != nil && e.App.Name != "" {
		return e.App.Name
	}
	return "unknown"
}

// entryDetail picks the most specific context line for an entry.
func entryDetail(e *activity.Entry) string {
	switch {
	case e.Browser != nil && e.Browser.URL != "":
		return e.Browser.URL
	case e.IDE != nil && e.IDE.CurrentFile != "":
		if e.IDE.Project != "" {
			return e.IDE.Project + "/" + e.IDE.CurrentFile
		}
		return e.IDE.CurrentFile
	case e.Terminal != nil && e.Terminal.LastCommand != "":
		return "$ " + e.Terminal.LastCommand
	case e.Media != nil && e.Media.Title != "":
		return e.Media.Title
	case e.App != nil && e.App.WindowTitle != "":
		return e.App.WindowTitle
	}
	return ""
}
