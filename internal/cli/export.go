package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/khanglvm/monitome/internal/activity"
	"github.com/khanglvm/monitome/internal/search"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// exportPage is the page size used to walk the index.
const exportPage = 500

// Searcher pages through the activity index.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Results, error)
}

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	var (
		format string
		output string
		date   string
		from   string
		to     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export activity entries for grep, jq or yq",
		Long: `Write indexed activity entries to a file or stdout, newest first.

Formats:
  jsonl  one entry per line (default)
  json   a single JSON array
  yaml   a YAML sequence

Writing to a file takes an exclusive lock on <output>.lock so two exports
never interleave.`,
		Example: `  # Everything, as JSON lines
  monitome export > activity.jsonl

  # One day as YAML
  monitome export --date 2026-03-04 --format yaml --output day.yaml

  # A time range
  monitome export --from 2026-03-01T00:00:00Z --to 2026-03-08T00:00:00Z

Grep usage examples:
  # Everything done in a terminal
  jq -r 'select(.terminal) | .terminal.last_command' activity.jsonl

  # Count entries per app
  jq -r '.app.name' activity.jsonl | sort | uniq -c`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := exportQuery(date, from, to)
			if err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), client, q, format, output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&format, "format", "jsonl", "Output format: jsonl, json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: stdout)")
	cmd.Flags().StringVar(&date, "date", "", "Only entries from one day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&from, "from", "", "Only entries captured at or after (RFC 3339)")
	cmd.Flags().StringVar(&to, "to", "", "Only entries captured at or before (RFC 3339)")

	return cmd
}

func exportQuery(date, from, to string) (search.Query, error) {
	q := search.Query{Date: date}
	if date != "" {
		if _, err := time.Parse(activity.DateLayout, date); err != nil {
			return q, fmt.Errorf("invalid --date %q: use YYYY-MM-DD", date)
		}
	}
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return q, fmt.Errorf("invalid --from %q: use RFC 3339", from)
		}
		q.From = t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return q, fmt.Errorf("invalid --to %q: use RFC 3339", to)
		}
		q.To = t
	}
	return q, nil
}

// runExport executes the export command.
func runExport(ctx context.Context, s Searcher, q search.Query, format, output string, stdout io.Writer) error {
	switch format {
	case "jsonl", "json", "yaml":
	default:
		return fmt.Errorf("unsupported format %q: use jsonl, json or yaml", format)
	}

	entries, err := collectEntries(ctx, s, q)
	if err != nil {
		return err
	}

	if output == "" {
		return writeEntries(stdout, entries, format)
	}

	// Acquire file lock to prevent concurrent writes
	lockFile, err := acquireFileLock(output)
	if err != nil {
		return fmt.Errorf("failed to acquire file lock: %w", err)
	}
	defer releaseFileLock(lockFile)

	if err := writeExportFile(entries, output, format); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "✓ Exported %d entries to %s\n", len(entries), output)
	return nil
}

// collectEntries pages through every entry matching q.
func collectEntries(ctx context.Context, s Searcher, q search.Query) ([]*activity.Entry, error) {
	var all []*activity.Entry
	q.Limit = exportPage
	for {
		res, err := s.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Entries()...)
		if len(res.Hits) < exportPage || uint64(len(all)) >= res.Total {
			return all, nil
		}
		q.Offset += exportPage
	}
}

// writeExportFile writes entries to path in the given format.
func writeExportFile(entries []*activity.Entry, path, format string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := writeEntries(file, entries, format); err != nil {
		return err
	}
	return file.Close()
}

func writeEntries(w io.Writer, entries []*activity.Entry, format string) error {
	if entries == nil {
		entries = []*activity.Entry{}
	}

	switch format {
	case "json":
		return writeJSON(w, entries)
	case "yaml":
		return writeYAML(w, entries)
	default:
		// JSONL format (one per line)
		encoder := json.NewEncoder(w)
		for _, e := range entries {
			if err := encoder.Encode(e); err != nil {
				return fmt.Errorf("failed to encode entry: %w", err)
			}
		}
		return nil
	}
}

// acquireFileLock acquires an exclusive lock on the export file.
func acquireFileLock(path string) (*os.File, error) {
	lockPath := path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	// Try to acquire exclusive lock (non-blocking)
	err = unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("failed to acquire lock (another export in progress?): %w", err)
	}

	return lockFile, nil
}

// releaseFileLock releases the file lock and removes the lock file.
func releaseFileLock(lockFile *os.File) error {
	if lockFile == nil {
		return nil
	}

	lockPath := lockFile.Name()

	unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
	lockFile.Close()

	return os.Remove(lockPath)
}
