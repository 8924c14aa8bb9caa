package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// execCommand is a variable that allows tests to mock exec.CommandContext
var execCommand = exec.CommandContext

// PathPlaceholder in a grabber argument is replaced by the output file path.
const PathPlaceholder = "{path}"

// CommandGrabber captures the screen by running an external tool.
//
// If any argument contains {path}, the tool is expected to write a PNG
// there; otherwise the image is read from its stdout.
type CommandGrabber struct {
	Command string
	Args    []string

	// TempDir holds intermediate files. Empty means os.TempDir().
	TempDir string
}

// Grab runs the capture tool once.
func (g *CommandGrabber) Grab(ctx context.Context) ([]byte, error) {
	if g.Command == "" {
		return nil, fmt.Errorf("no capture command configured")
	}

	usesPath := false
	for _, a := range g.Args {
		if strings.Contains(a, PathPlaceholder) {
			usesPath = true
			break
		}
	}

	if !usesPath {
		var stderr bytes.Buffer
		cmd := execCommand(ctx, g.Command, g.Args...)
		cmd.Stderr = &stderr
		out, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %s", g.Command, err, strings.TrimSpace(stderr.String()))
		}
		return out, nil
	}

	f, err := os.CreateTemp(g.TempDir, "monitome-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	args := make([]string, len(g.Args))
	for i, a := range g.Args {
		args[i] = strings.ReplaceAll(a, PathPlaceholder, path)
	}

	var stderr bytes.Buffer
	cmd := execCommand(ctx, g.Command, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", g.Command, err, strings.TrimSpace(stderr.String()))
	}

	return os.ReadFile(filepath.Clean(path))
}

// CommandProbe reads the foreground window from an external tool.
//
// The tool prints either a JSON object {"app": ..., "title": ...} or a
// line of the form "app<TAB>title".
type CommandProbe struct {
	Command string
	Args    []string
}

// Active runs the probe once.
func (p *CommandProbe) Active(ctx context.Context) (Window, error) {
	out, err := execCommand(ctx, p.Command, p.Args...).Output()
	if err != nil {
		return Window{}, fmt.Errorf("%s: %w", p.Command, err)
	}
	return parseWindow(out)
}

func parseWindow(out []byte) (Window, error) {
	s := strings.TrimSpace(string(out))
	if s == "" {
		return Window{}, fmt.Errorf("empty probe output")
	}

	if strings.HasPrefix(s, "{") {
		var w Window
		if err := json.Unmarshal([]byte(s), &w); err != nil {
			return Window{}, fmt.Errorf("invalid probe output: %w", err)
		}
		return w, nil
	}

	line, _, _ := strings.Cut(s, "\n")
	app, title, _ := strings.Cut(line, "\t")
	return Window{App: strings.TrimSpace(app), Title: strings.TrimSpace(title)}, nil
}
