package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/khanglvm/monitome/internal/activity"
	"github.com/khanglvm/monitome/internal/capture"
	"github.com/khanglvm/monitome/internal/extraction"
	"github.com/khanglvm/monitome/internal/pipeline"
	"github.com/khanglvm/monitome/internal/search"
	"github.com/khanglvm/monitome/internal/state"
	"github.com/khanglvm/monitome/internal/storage"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// --- Fake backend ---

type fakeBackend struct {
	recording     bool
	eventTriggers bool
	permission    bool
	entries       map[string]*activity.Entry
	rules         []storage.LearnedRule
	lastQuery     search.Query
}

func newFakeBackend(entries ...*activity.Entry) *fakeBackend {
	b := &fakeBackend{
		recording:     true,
		eventTriggers: true,
		permission:    true,
		entries:       make(map[string]*activity.Entry),
	}
	for _, e := range entries {
		b.entries[e.ScreenshotID] = e
	}
	return b
}

func (b *fakeBackend) Status(_ context.Context) (*pipeline.Status, error) {
	return &pipeline.Status{
		State: state.Snapshot{
			CaptureEnabled:       b.recording,
			EventTriggersEnabled: b.eventTriggers,
			TodayCount:           len(b.entries),
		},
		PeriodicActive: b.recording,
		EventsActive:   b.recording && b.eventTriggers,
		Queue:          storage.QueueStats{Pending: 2},
		Indexed:        uint64(len(b.entries)),
		Sidecar:        "running",
	}, nil
}

func (b *fakeBackend) CaptureNow(_ context.Context) (*storage.Screenshot, error) {
	if !b.recording {
		return nil, pipeline.ErrRecordingDisabled
	}
	shot := storage.NewScreenshot("01JCAPTURE", time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC), "manual")
	return &shot, nil
}

func (b *fakeBackend) SetRecording(_ context.Context, enabled bool) error {
	if enabled && !b.permission {
		return capture.ErrPermissionDenied
	}
	b.recording = enabled
	return nil
}

func (b *fakeBackend) SetEventTriggers(_ context.Context, enabled bool) error {
	b.eventTriggers = enabled
	return nil
}

func (b *fakeBackend) Search(_ context.Context, q search.Query) (*search.Results, error) {
	b.lastQuery = q
	res := &search.Results{}
	for _, e := range b.entries {
		if q.Text != "" && !strings.Contains(strings.ToLower(e.Activity), strings.ToLower(q.Text)) {
			continue
		}
		res.Hits = append(res.Hits, search.Hit{Entry: e, Score: 1})
	}
	res.Total = uint64(len(res.Hits))
	return res, nil
}

func (b *fakeBackend) Entry(_ context.Context, id string) (*activity.Entry, error) {
	e, ok := b.entries[id]
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", id, storage.ErrNotFound)
	}
	return e, nil
}

func (b *fakeBackend) Learn(_ context.Context, text string) (*storage.LearnedRule, error) {
	rule := storage.LearnedRule{ID: int64(len(b.rules) + 1), Text: text, CreatedAt: time.Now()}
	b.rules = append(b.rules, rule)
	return &rule, nil
}

func (b *fakeBackend) Summary(_ context.Context, date string) (*extraction.Summary, error) {
	for _, e := range b.entries {
		if e.Date == date {
			return &extraction.Summary{Summary: "Debugged the indexer", TopApps: []string{"code"}}, nil
		}
	}
	return nil, fmt.Errorf("%w on %s", pipeline.ErrNoActivity, date)
}

// --- Test helpers ---

func sampleEntry() *activity.Entry {
	return activity.NewEntry("01JSAMPLE", time.Date(2026, 3, 4, 9, 0, 0, 0, time.Local), &activity.Analysis{
		App:      &activity.AppContext{Name: "Code", WindowTitle: "agent.go"},
		IDE:      &activity.IDEContext{CurrentFile: "agent.go", Project: "monitome", Language: "Go"},
		Activity: "Debugging the indexer retry loop",
		Summary:  "Fixing backoff",
		Tags:     []string{"coding", "go"},
	}, time.Date(2026, 3, 4, 9, 1, 0, 0, time.Local))
}

func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()
	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}
	return result
}

func extractText(result *gomcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	if tc, ok := result.Content[0].(*gomcp.TextContent); ok {
		return tc.Text
	}
	return ""
}

// decodeOutput reads the structured output, falling back to the text
// content.
func decodeOutput(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	if result.StructuredContent != nil {
		data, err := json.Marshal(result.StructuredContent)
		if err != nil {
			t.Fatalf("marshalling structured content: %v", err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("unmarshalling structured content: %v", err)
		}
		return
	}
	if err := json.Unmarshal([]byte(extractText(result)), out); err != nil {
		t.Fatalf("unmarshalling text output: %v", err)
	}
}

// --- Tests ---

func TestListTools(t *testing.T) {
	srv := NewServer(newFakeBackend(), "test")

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	t1, t2 := gomcp.NewInMemoryTransports()
	go func() { _ = srv.MCPServer().Run(ctx, t1) }()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	res, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}

	want := map[string]bool{
		"activity_search": false, "activity_get": false, "activity_summary": false,
		"capture_now": false, "recording_status": false, "recording_set": false,
		"learn_rule": false,
	}
	for _, tool := range res.Tools {
		if _, ok := want[tool.Name]; !ok {
			t.Errorf("unexpected tool %q", tool.Name)
		}
		want[tool.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("missing tool %q", name)
		}
	}
}

func TestActivitySearch(t *testing.T) {
	backend := newFakeBackend(sampleEntry())
	srv := NewServer(backend, "test")

	result := callTool(t, srv, "activity_search", map[string]any{
		"query": "retry",
		"tags":  []string{"go"},
		"date":  "2026-03-04",
		"limit": 5,
	})

	var out searchOutput
	decodeOutput(t, result, &out)

	if out.Count != 1 || len(out.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", out.Count)
	}
	got := out.Results[0]
	if got.ScreenshotID != "01JSAMPLE" {
		t.Errorf("expected screenshot 01JSAMPLE, got %s", got.ScreenshotID)
	}
	if got.File != "agent.go" || got.Project != "monitome" {
		t.Errorf("expected IDE context to be flattened, got %+v", got)
	}
	if backend.lastQuery.Date != "2026-03-04" || backend.lastQuery.Limit != 5 {
		t.Errorf("filters not forwarded: %+v", backend.lastQuery)
	}
	if len(backend.lastQuery.Tags) != 1 || backend.lastQuery.Tags[0] != "go" {
		t.Errorf("tags not forwarded: %+v", backend.lastQuery.Tags)
	}
}

func TestActivitySearchInvalidDate(t *testing.T) {
	srv := NewServer(newFakeBackend(), "test")

	result := callTool(t, srv, "activity_search", map[string]any{"date": "March 4"})
	if !result.IsError {
		t.Fatal("expected error result for invalid date")
	}
}

func TestActivityGet(t *testing.T) {
	srv := NewServer(newFakeBackend(sampleEntry()), "test")

	var out entryOutput
	decodeOutput(t, callTool(t, srv, "activity_get", map[string]any{"screenshot_id": "01JSAMPLE"}), &out)
	if out.Summary != "Fixing backoff" {
		t.Errorf("expected summary 'Fixing backoff', got %q", out.Summary)
	}
	if out.App != "Code" {
		t.Errorf("expected app Code, got %q", out.App)
	}

	result := callTool(t, srv, "activity_get", map[string]any{"screenshot_id": "missing"})
	if !result.IsError {
		t.Fatal("expected error result for unknown screenshot")
	}
	if !strings.Contains(extractText(result), "still be analyzing") {
		t.Errorf("unexpected error text: %s", extractText(result))
	}
}

func TestActivitySummary(t *testing.T) {
	srv := NewServer(newFakeBackend(sampleEntry()), "test")

	var out summaryOutput
	decodeOutput(t, callTool(t, srv, "activity_summary", map[string]any{"date": "2026-03-04"}), &out)
	if out.Summary != "Debugged the indexer" {
		t.Errorf("unexpected summary %q", out.Summary)
	}

	result := callTool(t, srv, "activity_summary", map[string]any{"date": "2020-01-01"})
	if !result.IsError {
		t.Fatal("expected error result for a day without activity")
	}
}

func TestCaptureNow(t *testing.T) {
	backend := newFakeBackend()
	srv := NewServer(backend, "test")

	var out captureOutput
	decodeOutput(t, callTool(t, srv, "capture_now", map[string]any{}), &out)
	if out.ScreenshotID != "01JCAPTURE" {
		t.Errorf("expected screenshot 01JCAPTURE, got %s", out.ScreenshotID)
	}

	backend.recording = false
	result := callTool(t, srv, "capture_now", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error while recording is off")
	}
	if !strings.Contains(extractText(result), "recording_set") {
		t.Errorf("expected hint to use recording_set, got %s", extractText(result))
	}
}

func TestRecordingSet(t *testing.T) {
	backend := newFakeBackend()
	srv := NewServer(backend, "test")

	var out statusOutput
	decodeOutput(t, callTool(t, srv, "recording_set", map[string]any{"event_triggers": false}), &out)
	if !out.CaptureEnabled || out.EventTriggersEnabled || out.EventsActive {
		t.Errorf("unexpected status after disabling event triggers: %+v", out)
	}

	decodeOutput(t, callTool(t, srv, "recording_set", map[string]any{"recording": false}), &out)
	if out.CaptureEnabled || out.PeriodicActive {
		t.Errorf("unexpected status after stopping recording: %+v", out)
	}

	backend.permission = false
	result := callTool(t, srv, "recording_set", map[string]any{"recording": true})
	if !result.IsError {
		t.Fatal("expected error without capture permission")
	}

	result = callTool(t, srv, "recording_set", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error when nothing is set")
	}
}

func TestRecordingStatus(t *testing.T) {
	srv := NewServer(newFakeBackend(sampleEntry()), "test")

	var out statusOutput
	decodeOutput(t, callTool(t, srv, "recording_status", map[string]any{}), &out)
	if out.TodayCount != 1 || out.PendingIndex != 2 || out.Sidecar != "running" {
		t.Errorf("unexpected status: %+v", out)
	}
}

func TestLearnRule(t *testing.T) {
	backend := newFakeBackend()
	srv := NewServer(backend, "test")

	var out learnOutput
	decodeOutput(t, callTool(t, srv, "learn_rule", map[string]any{"text": "Ghostty is a terminal emulator"}), &out)
	if out.ID != 1 {
		t.Errorf("expected rule id 1, got %d", out.ID)
	}
	if len(backend.rules) != 1 {
		t.Fatalf("expected 1 stored rule, got %d", len(backend.rules))
	}

	result := callTool(t, srv, "learn_rule", map[string]any{"text": ""})
	if !result.IsError {
		t.Fatal("expected error for empty rule")
	}
}
