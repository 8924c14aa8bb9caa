package activity

import (
	"reflect"
	"testing"
	"time"
)

func TestNewEntry_DropsBlankContexts(t *testing.T) {
	captured := time.Date(2026, 3, 14, 10, 30, 0, 0, time.Local)
	a := &Analysis{
		App:      &AppContext{Name: "Ghostty", Category: "terminal"},
		Browser:  &BrowserContext{},
		Terminal: &TerminalContext{WorkingDirectory: "~/src/monitome", LastCommand: "go test ./..."},
		IDE:      &IDEContext{Tool: "  "},
		Activity: "  running tests  ",
		Summary:  "Running the test suite",
		Tags:     []string{"Go", "testing", "go", " "},
	}

	e := NewEntry("01HX", captured, a, captured.Add(time.Minute))

	if e.App == nil || e.App.Name != "Ghostty" {
		t.Errorf("expected app context to be kept, got %+v", e.App)
	}
	if e.Terminal == nil {
		t.Error("expected terminal context to be kept")
	}
	if e.Browser != nil {
		t.Errorf("expected empty browser context to be dropped, got %+v", e.Browser)
	}
	if e.IDE != nil {
		t.Errorf("expected whitespace-only IDE context to be dropped, got %+v", e.IDE)
	}
	if e.Media != nil {
		t.Error("expected absent media context to stay nil")
	}
	if e.Activity != "running tests" {
		t.Errorf("Activity = %q, want trimmed", e.Activity)
	}
	if e.Date != "2026-03-14" {
		t.Errorf("Date = %q, want 2026-03-14", e.Date)
	}
	if want := []string{"go", "testing"}; !reflect.DeepEqual(e.Tags, want) {
		t.Errorf("Tags = %v, want %v", e.Tags, want)
	}
}

func TestNewEntry_CopiesContexts(t *testing.T) {
	a := &Analysis{App: &AppContext{Name: "Safari"}, Activity: "reading", Summary: "reading"}
	e := NewEntry("id", time.Now(), a, time.Now())

	a.App.Name = "Changed"
	if e.App.Name != "Safari" {
		t.Error("entry must not alias the analysis context objects")
	}
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, []string{}},
		{"dedupe case", []string{"A", "a", "b"}, []string{"a", "b"}},
		{"sorted", []string{"zeta", "alpha"}, []string{"alpha", "zeta"}},
		{"blank removed", []string{"", "  "}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTags(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeTags(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
