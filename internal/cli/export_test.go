package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/khanglvm/monitome/internal/activity"
	"github.com/khanglvm/monitome/internal/search"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// pagedSearcher serves a fixed entry list one page at a time.
type pagedSearcher struct {
	entries []*activity.Entry
	queries []search.Query
	err     error
}

func (s *pagedSearcher) Search(ctx context.Context, q search.Query) (*search.Results, error) {
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}

	res := &search.Results{Total: uint64(len(s.entries))}
	for i := q.Offset; i < len(s.entries) && i < q.Offset+q.Limit; i++ {
		res.Hits = append(res.Hits, search.Hit{Entry: s.entries[i], Score: 1})
	}
	return res, nil
}

func makeEntries(n int) []*activity.Entry {
	base := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	entries := make([]*activity.Entry, n)
	for i := range entries {
		at := base.Add(time.Duration(i) * time.Minute)
		entries[i] = activity.NewEntry(fmt.Sprintf("shot-%04d", i), at, &activity.Analysis{
			App:      &activity.AppContext{Name: "Code"},
			IDE:      &activity.IDEContext{CurrentFile: "main.go", Project: "monitome"},
			Activity: "Editing main.go",
			Summary:  "Editing",
			Tags:     []string{"Coding"},
		}, at)
	}
	return entries
}

func TestExportQuery(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		from    string
		to      string
		wantErr string
	}{
		{name: "empty"},
		{name: "date", date: "2026-03-04"},
		{name: "range", from: "2026-03-01T00:00:00Z", to: "2026-03-08T00:00:00Z"},
		{name: "bad date", date: "4 March", wantErr: "--date"},
		{name: "bad from", from: "2026-03-01", wantErr: "--from"},
		{name: "bad to", to: "yesterday", wantErr: "--to"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := exportQuery(tt.date, tt.from, tt.to)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.date, q.Date)
			require.Equal(t, tt.from == "", q.From.IsZero())
			require.Equal(t, tt.to == "", q.To.IsZero())
		})
	}
}

func TestRunExportPagesThroughIndex(t *testing.T) {
	s := &pagedSearcher{entries: makeEntries(2*exportPage + 7)}
	stdout := new(bytes.Buffer)

	err := runExport(context.Background(), s, search.Query{Date: "2026-03-04"}, "jsonl", "", stdout)
	require.NoError(t, err)

	require.Len(t, s.queries, 3)
	for i, q := range s.queries {
		require.Equal(t, exportPage, q.Limit)
		require.Equal(t, i*exportPage, q.Offset)
		require.Equal(t, "2026-03-04", q.Date)
	}

	lines := 0
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		var e activity.Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		require.Equal(t, fmt.Sprintf("shot-%04d", lines), e.ScreenshotID)
		require.Equal(t, []string{"coding"}, e.Tags)
		lines++
	}
	require.Equal(t, 2*exportPage+7, lines)
}

func TestRunExportErrors(t *testing.T) {
	s := &pagedSearcher{}
	err := runExport(context.Background(), s, search.Query{}, "csv", "", new(bytes.Buffer))
	require.ErrorContains(t, err, "unsupported format")
	require.Empty(t, s.queries, "format is checked before searching")

	boom := errors.New("index closed")
	err = runExport(context.Background(), &pagedSearcher{err: boom}, search.Query{}, "json", "", new(bytes.Buffer))
	require.ErrorIs(t, err, boom)
}

func TestRunExportToFile(t *testing.T) {
	output := filepath.Join(t.TempDir(), "activity.json")
	stdout := new(bytes.Buffer)

	err := runExport(context.Background(), &pagedSearcher{entries: makeEntries(3)}, search.Query{}, "json", output, stdout)
	require.NoError(t, err)
	require.Contains(t, stdout.String(), "Exported 3 entries to "+output)

	info, err := os.Stat(output)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var entries []activity.Entry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 3)
	require.Equal(t, "monitome", entries[0].IDE.Project)

	_, err = os.Stat(output + ".lock")
	require.True(t, os.IsNotExist(err), "lock file is removed after export")
}

func TestWriteEntries(t *testing.T) {
	entries := makeEntries(2)

	t.Run("jsonl", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, writeEntries(buf, entries, "jsonl"))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		require.Contains(t, lines[1], `"screenshot_id":"shot-0001"`)
	})

	t.Run("json", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, writeEntries(buf, entries, "json"))
		var got []activity.Entry
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		require.Len(t, got, 2)
	})

	t.Run("yaml", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, writeEntries(buf, entries, "yaml"))
		var got []activity.Entry
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		require.Len(t, got, 2)
		require.Equal(t, "main.go", got[0].IDE.CurrentFile)
		require.Contains(t, buf.String(), "current_file: main.go")
	})

	t.Run("empty json is an array", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, writeEntries(buf, nil, "json"))
		require.Equal(t, "[]", strings.TrimSpace(buf.String()))
	})

	t.Run("empty jsonl writes nothing", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, writeEntries(buf, nil, "jsonl"))
		require.Empty(t, buf.String())
	})
}

func TestAcquireFileLock(t *testing.T) {
	output := filepath.Join(t.TempDir(), "activity.jsonl")

	lockFile, err := acquireFileLock(output)
	require.NoError(t, err)
	defer releaseFileLock(lockFile)

	_, err = os.Stat(output + ".lock")
	require.NoError(t, err, "lock file was not created")

	_, err = acquireFileLock(output)
	require.Error(t, err, "second export must not get the lock")

	err = runExport(context.Background(), &pagedSearcher{entries: makeEntries(1)}, search.Query{}, "jsonl", output, new(bytes.Buffer))
	require.ErrorContains(t, err, "another export in progress")
}

func TestReleaseFileLock(t *testing.T) {
	output := filepath.Join(t.TempDir(), "activity.jsonl")

	lockFile, err := acquireFileLock(output)
	require.NoError(t, err)
	lockPath := lockFile.Name()

	require.NoError(t, releaseFileLock(lockFile))
	_, err = os.Stat(lockPath)
	require.True(t, os.IsNotExist(err), "lock file was not removed after release")

	again, err := acquireFileLock(output)
	require.NoError(t, err, "lock can be re-acquired after release")
	defer releaseFileLock(again)

	require.NoError(t, releaseFileLock(nil))
}

func TestConcurrentFileLocking(t *testing.T) {
	output := filepath.Join(t.TempDir(), "activity.jsonl")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		peak    int
		success int
	)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			lockFile, err := acquireFileLock(output)
			if err != nil {
				return
			}

			mu.Lock()
			success++
			holders++
			if holders > peak {
				peak = holders
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			releaseFileLock(lockFile)
		}()
	}

	wg.Wait()

	require.Positive(t, success, "no goroutine acquired the lock")
	require.Equal(t, 1, peak, "lock was held by more than one export at once")
}
