/*
Package mcp implements the MCP server that lets AI assistants query and
drive the capture agent.

The server speaks stdio and proxies every tool to a running daemon:
  - activity_search: search indexed activity entries
  - activity_get: fetch one entry by screenshot id
  - activity_summary: digest one day of activity
  - capture_now: take a manual screenshot
  - recording_status: report recording toggles and indexing backlog
  - recording_set: turn recording or event triggers on and off
  - learn_rule: teach the extractor a correction
*/
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/khanglvm/monitome/internal/activity"
	"github.com/khanglvm/monitome/internal/extraction"
	"github.com/khanglvm/monitome/internal/pipeline"
	"github.com/khanglvm/monitome/internal/search"
	"github.com/khanglvm/monitome/internal/storage"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Backend is the daemon as the MCP server sees it. *control.Client
// implements it.
type Backend interface {
	Status(ctx context.Context) (*pipeline.Status, error)
	CaptureNow(ctx context.Context) (*storage.Screenshot, error)
	SetRecording(ctx context.Context, enabled bool) error
	SetEventTriggers(ctx context.Context, enabled bool) error
	Search(ctx context.Context, q search.Query) (*search.Results, error)
	Entry(ctx context.Context, id string) (*activity.Entry, error)
	Learn(ctx context.Context, text string) (*storage.LearnedRule, error)
	Summary(ctx context.Context, date string) (*extraction.Summary, error)
}

// Server exposes the backend as MCP tools.
type Server struct {
	server  *gomcp.Server
	backend Backend
}

// NewServer creates an MCP server for backend.
func NewServer(backend Backend, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{backend: backend}
	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "monitome", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves on stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying server for tests.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type searchInput struct {
	Query string   `json:"query,omitempty" jsonschema:"free text matched against activity, summary, titles, URLs, files and commands"`
	Tags  []string `json:"tags,omitempty" jsonschema:"every tag must be present (e.g. coding, meeting)"`
	Date  string   `json:"date,omitempty" jsonschema:"restrict to one day, YYYY-MM-DD"`
	App   string   `json:"app,omitempty" jsonschema:"restrict to one application name"`
	Limit int      `json:"limit,omitempty" jsonschema:"maximum number of results (default 20)"`
}

type entryOutput struct {
	ScreenshotID string   `json:"screenshot_id"`
	CapturedAt   string   `json:"captured_at"`
	Date         string   `json:"date"`
	App          string   `json:"app,omitempty"`
	WindowTitle  string   `json:"window_title,omitempty"`
	URL          string   `json:"url,omitempty"`
	PageTitle    string   `json:"page_title,omitempty"`
	Media        string   `json:"media,omitempty"`
	File         string   `json:"file,omitempty"`
	Project      string   `json:"project,omitempty"`
	Directory    string   `json:"directory,omitempty"`
	Command      string   `json:"command,omitempty"`
	Activity     string   `json:"activity"`
	Summary      string   `json:"summary"`
	Tags         []string `json:"tags,omitempty"`
}

type searchOutput struct {
	Results []entryOutput `json:"results"`
	Count   int           `json:"count"`
	Total   uint64        `json:"total"`
}

type getEntryInput struct {
	ScreenshotID string `json:"screenshot_id" jsonschema:"required,the screenshot id returned by activity_search"`
}

type summaryInput struct {
	Date string `json:"date,omitempty" jsonschema:"day to summarize, YYYY-MM-DD. Defaults to today."`
}

type summaryOutput struct {
	Date       string   `json:"date"`
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights,omitempty"`
	TopApps    []string `json:"top_apps,omitempty"`
}

type captureInput struct{}

type captureOutput struct {
	ScreenshotID string `json:"screenshot_id"`
	CapturedAt   string `json:"captured_at"`
	Message      string `json:"message"`
}

type statusInput struct{}

type statusOutput struct {
	CaptureEnabled       bool   `json:"capture_enabled"`
	EventTriggersEnabled bool   `json:"event_triggers_enabled"`
	PeriodicActive       bool   `json:"periodic_active"`
	EventsActive         bool   `json:"events_active"`
	TodayCount           int    `json:"today_count"`
	PendingIndex         int    `json:"pending_index"`
	FailedIndex          int    `json:"failed_index"`
	Indexed              uint64 `json:"indexed"`
	Sidecar              string `json:"sidecar"`
}

type recordingSetInput struct {
	Recording     *bool `json:"recording,omitempty" jsonschema:"turn screen recording on or off"`
	EventTriggers *bool `json:"event_triggers,omitempty" jsonschema:"turn capture on app and window switches on or off"`
}

type learnInput struct {
	Text string `json:"text" jsonschema:"required,a correction or fact the extractor should apply to future screenshots"`
}

type learnOutput struct {
	ID      int64  `json:"id"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "activity_search",
		Description: "Search the user's recorded screen activity. Combine free text with tag, date and app filters. Returns the most relevant entries first, or the most recent when no text is given.",
	}, s.handleSearch)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "activity_get",
		Description: "Get one activity entry by screenshot id, including app, browser, editor and terminal context.",
	}, s.handleGet)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "activity_summary",
		Description: "Summarize one day of recorded activity: a narrative, highlights and the most used apps.",
	}, s.handleSummary)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "capture_now",
		Description: "Take a screenshot immediately. Requires recording to be on. The entry becomes searchable once analysis finishes.",
	}, s.handleCapture)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "recording_status",
		Description: "Report whether recording and event triggers are on, today's capture count and the indexing backlog.",
	}, s.handleStatus)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "recording_set",
		Description: "Turn screen recording and/or event-triggered capture on or off. Returns the resulting status.",
	}, s.handleRecordingSet)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "learn_rule",
		Description: "Teach the extractor a correction (e.g. 'Ghostty is a terminal emulator'). Applies to screenshots analyzed from now on.",
	}, s.handleLearn)
}

// --- Tool handlers ---

func (s *Server) handleSearch(ctx context.Context, _ *gomcp.CallToolRequest, input searchInput) (*gomcp.CallToolResult, searchOutput, error) {
	if input.Date != "" {
		if _, err := time.Parse(activity.DateLayout, input.Date); err != nil {
			return errorResult(fmt.Sprintf("invalid date %q: use YYYY-MM-DD", input.Date)), searchOutput{Results: []entryOutput{}}, nil
		}
	}

	res, err := s.backend.Search(ctx, search.Query{
		Text:  input.Query,
		Tags:  input.Tags,
		Date:  input.Date,
		App:   input.App,
		Limit: input.Limit,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("searching activity: %s", err)), searchOutput{Results: []entryOutput{}}, nil
	}

	out := searchOutput{
		Results: make([]entryOutput, 0, len(res.Hits)),
		Total:   res.Total,
	}
	for _, e := range res.Entries() {
		out.Results = append(out.Results, entryToOutput(e))
	}
	out.Count = len(out.Results)
	return nil, out, nil
}

func (s *Server) handleGet(ctx context.Context, _ *gomcp.CallToolRequest, input getEntryInput) (*gomcp.CallToolResult, entryOutput, error) {
	if input.ScreenshotID == "" {
		return errorResult("screenshot_id is required"), entryOutput{}, nil
	}

	e, err := s.backend.Entry(ctx, input.ScreenshotID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errorResult(fmt.Sprintf("no indexed entry for %s (it may still be analyzing)", input.ScreenshotID)), entryOutput{}, nil
		}
		return errorResult(fmt.Sprintf("getting entry %s: %s", input.ScreenshotID, err)), entryOutput{}, nil
	}
	return nil, entryToOutput(e), nil
}

func (s *Server) handleSummary(ctx context.Context, _ *gomcp.CallToolRequest, input summaryInput) (*gomcp.CallToolResult, summaryOutput, error) {
	date := input.Date
	if date == "" {
		date = time.Now().Format(activity.DateLayout)
	}

	sum, err := s.backend.Summary(ctx, date)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoActivity) {
			return errorResult(fmt.Sprintf("no activity recorded on %s", date)), summaryOutput{}, nil
		}
		return errorResult(fmt.Sprintf("summarizing %s: %s", date, err)), summaryOutput{}, nil
	}

	return nil, summaryOutput{
		Date:       date,
		Summary:    sum.Summary,
		Highlights: sum.Highlights,
		TopApps:    sum.TopApps,
	}, nil
}

func (s *Server) handleCapture(ctx context.Context, _ *gomcp.CallToolRequest, _ captureInput) (*gomcp.CallToolResult, captureOutput, error) {
	shot, err := s.backend.CaptureNow(ctx)
	if err != nil {
		if errors.Is(err, pipeline.ErrRecordingDisabled) {
			return errorResult("recording is off; turn it on with recording_set first"), captureOutput{}, nil
		}
		return errorResult(fmt.Sprintf("capturing screenshot: %s", err)), captureOutput{}, nil
	}

	return nil, captureOutput{
		ScreenshotID: shot.ID,
		CapturedAt:   shot.CreatedAt.Format(time.RFC3339),
		Message:      "screenshot captured; it will be searchable once analysis finishes",
	}, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *gomcp.CallToolRequest, _ statusInput) (*gomcp.CallToolResult, statusOutput, error) {
	st, err := s.backend.Status(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("getting status: %s", err)), statusOutput{}, nil
	}
	return nil, statusToOutput(st), nil
}

func (s *Server) handleRecordingSet(ctx context.Context, _ *gomcp.CallToolRequest, input recordingSetInput) (*gomcp.CallToolResult, statusOutput, error) {
	if input.Recording == nil && input.EventTriggers == nil {
		return errorResult("set at least one of recording or event_triggers"), statusOutput{}, nil
	}

	if input.Recording != nil {
		if err := s.backend.SetRecording(ctx, *input.Recording); err != nil {
			return errorResult(fmt.Sprintf("setting recording: %s", err)), statusOutput{}, nil
		}
	}
	if input.EventTriggers != nil {
		if err := s.backend.SetEventTriggers(ctx, *input.EventTriggers); err != nil {
			return errorResult(fmt.Sprintf("setting event triggers: %s", err)), statusOutput{}, nil
		}
	}

	return s.handleStatus(ctx, nil, statusInput{})
}

func (s *Server) handleLearn(ctx context.Context, _ *gomcp.CallToolRequest, input learnInput) (*gomcp.CallToolResult, learnOutput, error) {
	if input.Text == "" {
		return errorResult("text is required"), learnOutput{}, nil
	}

	rule, err := s.backend.Learn(ctx, input.Text)
	if err != nil {
		return errorResult(fmt.Sprintf("learning rule: %s", err)), learnOutput{}, nil
	}
	return nil, learnOutput{
		ID:      rule.ID,
		Text:    rule.Text,
		Message: "rule saved; it applies to screenshots analyzed from now on",
	}, nil
}

// --- Helpers ---

func entryToOutput(e *activity.Entry) entryOutput {
	out := entryOutput{
		ScreenshotID: e.ScreenshotID,
		CapturedAt:   e.CapturedAt.Format(time.RFC3339),
		Date:         e.Date,
		Activity:     e.Activity,
		Summary:      e.Summary,
		Tags:         e.Tags,
	}
	if e.App != nil {
		out.App = e.App.Name
		out.WindowTitle = e.App.WindowTitle
	}
	if e.Browser != nil {
		out.URL = e.Browser.URL
		out.PageTitle = e.Browser.PageTitle
	}
	if e.Media != nil {
		out.Media = e.Media.Title
	}
	if e.IDE != nil {
		out.File = e.IDE.CurrentFile
		out.Project = e.IDE.Project
	}
	if e.Terminal != nil {
		out.Directory = e.Terminal.WorkingDirectory
		out.Command = e.Terminal.LastCommand
	}
	return out
}

func statusToOutput(st *pipeline.Status) statusOutput {
	return statusOutput{
		CaptureEnabled:       st.State.CaptureEnabled,
		EventTriggersEnabled: st.State.EventTriggersEnabled,
		PeriodicActive:       st.PeriodicActive,
		EventsActive:         st.EventsActive,
		TodayCount:           st.State.TodayCount,
		PendingIndex:         st.Queue.Pending,
		FailedIndex:          st.Queue.Failed,
		Indexed:              st.Indexed,
		Sidecar:              st.Sidecar,
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
