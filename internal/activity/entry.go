/*
Package activity defines the structured metadata extracted from one capture.

An Analysis is what the extraction service returns for a single screenshot.
An Entry is the normalized, immutable record written to the search index,
keyed by the screenshot it was extracted from.
*/
package activity

import (
	"sort"
	"strings"
	"time"
)

// AppContext describes the foreground application.
type AppContext struct {
	Name        string `json:"name" yaml:"name"`
	WindowTitle string `json:"window_title,omitempty" yaml:"window_title,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
}

// BrowserContext describes the visible browser page.
type BrowserContext struct {
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	Domain    string `json:"domain,omitempty" yaml:"domain,omitempty"`
	PageTitle string `json:"page_title,omitempty" yaml:"page_title,omitempty"`
	PageType  string `json:"page_type,omitempty" yaml:"page_type,omitempty"`
}

// MediaContext describes media being watched or listened to.
type MediaContext struct {
	Platform string `json:"platform,omitempty" yaml:"platform,omitempty"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	Channel  string `json:"channel,omitempty" yaml:"channel,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// IDEContext describes an editor or IDE session.
type IDEContext struct {
	Tool        string `json:"tool,omitempty" yaml:"tool,omitempty"`
	CurrentFile string `json:"current_file,omitempty" yaml:"current_file,omitempty"`
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`
	Language    string `json:"language,omitempty" yaml:"language,omitempty"`
	Project     string `json:"project,omitempty" yaml:"project,omitempty"`
}

// TerminalContext describes a terminal session.
type TerminalContext struct {
	WorkingDirectory string `json:"working_directory,omitempty" yaml:"working_directory,omitempty"`
	LastCommand      string `json:"last_command,omitempty" yaml:"last_command,omitempty"`
}

// Analysis is the extraction service response for one screenshot.
// Context objects are present only when the model reported them.
type Analysis struct {
	App      *AppContext      `json:"app,omitempty"`
	Browser  *BrowserContext  `json:"browser,omitempty"`
	Media    *MediaContext    `json:"media,omitempty"`
	IDE      *IDEContext      `json:"ide,omitempty"`
	Terminal *TerminalContext `json:"terminal,omitempty"`
	Activity string           `json:"activity"`
	Summary  string           `json:"summary"`
	Tags     []string         `json:"tags"`
}

// Entry is one indexed activity record. ScreenshotID is its identity:
// writing a second Entry with the same ScreenshotID replaces the first.
type Entry struct {
	ScreenshotID string           `json:"screenshot_id" yaml:"screenshot_id"`
	CapturedAt   time.Time        `json:"captured_at" yaml:"captured_at"`
	Date         string           `json:"date" yaml:"date"`
	App          *AppContext      `json:"app,omitempty" yaml:"app,omitempty"`
	Browser      *BrowserContext  `json:"browser,omitempty" yaml:"browser,omitempty"`
	Media        *MediaContext    `json:"media,omitempty" yaml:"media,omitempty"`
	IDE          *IDEContext      `json:"ide,omitempty" yaml:"ide,omitempty"`
	Terminal     *TerminalContext `json:"terminal,omitempty" yaml:"terminal,omitempty"`
	Activity     string           `json:"activity" yaml:"activity"`
	Summary      string           `json:"summary" yaml:"summary"`
	Tags         []string         `json:"tags" yaml:"tags"`
	IndexedAt    time.Time        `json:"indexed_at" yaml:"indexed_at"`
}

// DateLayout is the calendar-date format shared by screenshots and entries.
const DateLayout = "2006-01-02"

// NewEntry normalizes an Analysis into an Entry for the given screenshot.
// Context objects whose fields are all blank are dropped, and tags are
// lowercased, trimmed, de-duplicated and sorted.
func NewEntry(screenshotID string, capturedAt time.Time, a *Analysis, indexedAt time.Time) *Entry {
	e := &Entry{
		ScreenshotID: screenshotID,
		CapturedAt:   capturedAt,
		Date:         capturedAt.Local().Format(DateLayout),
		Activity:     strings.TrimSpace(a.Activity),
		Summary:      strings.TrimSpace(a.Summary),
		Tags:         NormalizeTags(a.Tags),
		IndexedAt:    indexedAt,
	}

	if a.App != nil && !blank(a.App.Name, a.App.WindowTitle, a.App.Category) {
		app := *a.App
		e.App = &app
	}
	if a.Browser != nil && !blank(a.Browser.URL, a.Browser.Domain, a.Browser.PageTitle, a.Browser.PageType) {
		b := *a.Browser
		e.Browser = &b
	}
	if a.Media != nil && !blank(a.Media.Platform, a.Media.Title, a.Media.Channel, a.Media.Duration) {
		m := *a.Media
		e.Media = &m
	}
	if a.IDE != nil && !blank(a.IDE.Tool, a.IDE.CurrentFile, a.IDE.Path, a.IDE.Language, a.IDE.Project) {
		ide := *a.IDE
		e.IDE = &ide
	}
	if a.Terminal != nil && !blank(a.Terminal.WorkingDirectory, a.Terminal.LastCommand) {
		term := *a.Terminal
		e.Terminal = &term
	}

	return e
}

// NormalizeTags returns the tag set in canonical form.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func blank(fields ...string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
