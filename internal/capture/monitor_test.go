package capture

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type scriptedProbe struct {
	mu   sync.Mutex
	apps []string
	i    int
}

func (p *scriptedProbe) Active(ctx context.Context) (Window, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	app := p.apps[len(p.apps)-1]
	if p.i < len(p.apps) {
		app = p.apps[p.i]
		p.i++
	}
	return Window{App: app}, nil
}

type triggerSink struct {
	mu  sync.Mutex
	got []Trigger
}

func (s *triggerSink) add(t Trigger) {
	s.mu.Lock()
	s.got = append(s.got, t)
	s.mu.Unlock()
}

func (s *triggerSink) triggers() []Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Trigger, len(s.got))
	copy(out, s.got)
	return out
}

func TestActivityMonitor_NotifyIgnoredWhileStopped(t *testing.T) {
	sink := &triggerSink{}
	m := NewActivityMonitor(sink.add, MonitorOptions{})

	if m.Notify("window focus") {
		t.Error("Notify must be ignored while stopped")
	}

	m.Start()
	if !m.Notify("window focus") {
		t.Error("Notify must emit while running")
	}
	m.Stop()

	if m.Notify("window focus") {
		t.Error("Notify must be ignored after Stop")
	}

	got := sink.triggers()
	if len(got) != 1 || got[0].Kind != Event || got[0].Reason != "window focus" {
		t.Errorf("unexpected triggers %v", got)
	}
}

func TestActivityMonitor_AppSwitch(t *testing.T) {
	sink := &triggerSink{}
	probe := &scriptedProbe{apps: []string{"Safari", "Safari", "Code", "Code", "Ghostty"}}
	m := NewActivityMonitor(sink.add, MonitorOptions{Probe: probe, Interval: 5 * time.Millisecond})

	m.Start()
	deadline := time.Now().Add(3 * time.Second)
	for len(sink.triggers()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	got := sink.triggers()
	if len(got) != 2 {
		t.Fatalf("expected 2 app switches, got %v", got)
	}
	if got[0].Reason != "app switch: Code" || got[1].Reason != "app switch: Ghostty" {
		t.Errorf("unexpected reasons %v", got)
	}
	if m.Running() {
		t.Error("expected monitor stopped")
	}
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in      string
		want    Window
		wantErr bool
	}{
		{in: "Safari\tGitHub - Pull request", want: Window{App: "Safari", Title: "GitHub - Pull request"}},
		{in: "Code\n", want: Window{App: "Code"}},
		{in: `{"app":"Ghostty","title":"~/src"}`, want: Window{App: "Ghostty", Title: "~/src"}},
		{in: "  ", wantErr: true},
		{in: `{"app":`, wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseWindow([]byte(tt.in))
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseWindow(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("parseWindow(%q) = %+v, %v; want %+v", tt.in, got, err, tt.want)
		}
	}
}

func TestCommandGrabber_PathPlaceholder(t *testing.T) {
	g := &CommandGrabber{
		Command: "sh",
		Args:    []string{"-c", "printf png-data > " + PathPlaceholder},
		TempDir: t.TempDir(),
	}

	data, err := g.Grab(context.Background())
	if err != nil {
		t.Fatalf("Grab failed: %v", err)
	}
	if string(data) != "png-data" {
		t.Errorf("unexpected data %q", data)
	}

	// Temp file is cleaned up.
	entries, _ := os.ReadDir(g.TempDir)
	if len(entries) != 0 {
		t.Errorf("expected temp dir empty, found %d files", len(entries))
	}
}

func TestCommandGrabber_Stdout(t *testing.T) {
	g := &CommandGrabber{Command: "printf", Args: []string{"raw"}}

	data, err := g.Grab(context.Background())
	if err != nil {
		t.Fatalf("Grab failed: %v", err)
	}
	if string(data) != "raw" {
		t.Errorf("unexpected data %q", data)
	}
}

func TestCommandGrabber_Failure(t *testing.T) {
	g := &CommandGrabber{Command: "sh", Args: []string{"-c", "echo no display >&2; exit 3"}}

	if _, err := g.Grab(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCommandProbe_UsesExecCommand(t *testing.T) {
	originalExec := execCommand
	defer func() { execCommand = originalExec }()

	var gotName string
	execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName = name
		return exec.CommandContext(ctx, "printf", "Code\\tmain.go")
	}

	p := &CommandProbe{Command: filepath.Join("/usr/local/bin", "frontmost")}
	w, err := p.Active(context.Background())
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if gotName != "/usr/local/bin/frontmost" {
		t.Errorf("unexpected command %q", gotName)
	}
	if w.App != "Code" || w.Title != "main.go" {
		t.Errorf("unexpected window %+v", w)
	}
}
