/*
Package config handles loading and saving monitome configuration.

Configuration is stored in ~/.monitome.json as camelCase JSON. Every key
has a default, so a missing file is a valid configuration. Keys can be
overridden from the environment with the MONITOME_ prefix, dots replaced
by underscores (MONITOME_CAPTURE_COOLDOWNSECONDS=10).

Schema:
  {
    "dataDir": "~/.monitome",
    "capture": {
      "intervalSeconds": 60,
      "cooldownSeconds": 5,
      "autoStart": true,
      "command": "screencapture",
      "args": ["-x", "-t", "png", "{path}"],
      "probeCommand": "",
      "probeArgs": [],
      "probeIntervalMillis": 1000,
      "permissionGranted": true,
      "accessibilityGranted": true
    },
    "indexing": {
      "workers": 2,
      "maxAttempts": 3,
      "backoffSeconds": 2,
      "maxBackoffSeconds": 60,
      "timeoutSeconds": 60,
      "pollMillis": 500,
      "sweepSeconds": 300
    },
    "analysis": {
      "url": "http://127.0.0.1:8420",
      "command": "",
      "args": [],
      "env": {},
      "healthSeconds": 10
    },
    "control": {
      "addr": "127.0.0.1:8421"
    }
  }
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Config represents the root configuration structure.
type Config struct {
	// DataDir holds the database, screenshots and search index.
	DataDir string `json:"dataDir"`

	Capture  CaptureConfig  `json:"capture"`
	Indexing IndexingConfig `json:"indexing"`
	Analysis AnalysisConfig `json:"analysis"`
	Control  ControlConfig  `json:"control"`
}

// CaptureConfig controls when and how screenshots are taken.
type CaptureConfig struct {
	IntervalSeconds int `json:"intervalSeconds"`

	// CooldownSeconds is the minimum gap between non-manual captures.
	// Zero disables the cooldown.
	CooldownSeconds int `json:"cooldownSeconds"`

	// AutoStart is the value of the recording toggle on first run.
	AutoStart bool `json:"autoStart"`

	// Command takes one screenshot. "{path}" in Args is replaced with a
	// temp file path; without it the image is read from stdout.
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`

	// ProbeCommand prints the frontmost app and window title. Empty
	// means only externally reported activity triggers captures.
	ProbeCommand        string   `json:"probeCommand,omitempty"`
	ProbeArgs           []string `json:"probeArgs,omitempty"`
	ProbeIntervalMillis int      `json:"probeIntervalMillis"`

	// Host-granted permissions. monitome never prompts for them.
	PermissionGranted    bool `json:"permissionGranted"`
	AccessibilityGranted bool `json:"accessibilityGranted"`
}

// IndexingConfig controls the extraction worker pool.
type IndexingConfig struct {
	Workers           int `json:"workers"`
	MaxAttempts       int `json:"maxAttempts"`
	BackoffSeconds    int `json:"backoffSeconds"`
	MaxBackoffSeconds int `json:"maxBackoffSeconds"`
	TimeoutSeconds    int `json:"timeoutSeconds"`
	PollMillis        int `json:"pollMillis"`
	SweepSeconds      int `json:"sweepSeconds"`
}

// AnalysisConfig locates the analysis service and, optionally, how to
// run it as a supervised sidecar.
type AnalysisConfig struct {
	URL string `json:"url"`

	// Command starts the service. Empty means it is managed elsewhere.
	Command       string            `json:"command,omitempty"`
	Args          []string          `json:"args,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	HealthSeconds int               `json:"healthSeconds"`
}

// ControlConfig configures the local control API.
type ControlConfig struct {
	Addr string `json:"addr"`
}

// NewConfig returns a configuration with every default filled in.
func NewConfig() *Config {
	command, args := defaultCaptureCommand()
	return &Config{
		DataDir: "~/.monitome",
		Capture: CaptureConfig{
			IntervalSeconds:      60,
			CooldownSeconds:      5,
			AutoStart:            true,
			Command:              command,
			Args:                 args,
			ProbeIntervalMillis:  1000,
			PermissionGranted:    true,
			AccessibilityGranted: true,
		},
		Indexing: IndexingConfig{
			Workers:           2,
			MaxAttempts:       3,
			BackoffSeconds:    2,
			MaxBackoffSeconds: 60,
			TimeoutSeconds:    60,
			PollMillis:        500,
			SweepSeconds:      300,
		},
		Analysis: AnalysisConfig{
			URL:           "http://127.0.0.1:8420",
			Env:           map[string]string{},
			HealthSeconds: 10,
		},
		Control: ControlConfig{
			Addr: "127.0.0.1:8421",
		},
	}
}

func defaultCaptureCommand() (string, []string) {
	if runtime.GOOS == "darwin" {
		return "screencapture", []string{"-x", "-t", "png", "{path}"}
	}
	return "grim", []string{"{path}"}
}

// GetDefaultConfigPath returns the path to ~/.monitome.json
func GetDefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".monitome.json"), nil
}

// ResolveDataDir expands a leading ~ in DataDir.
func (c *Config) ResolveDataDir() (string, error) {
	dir := c.DataDir
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	return filepath.Abs(dir)
}

// Interval is the periodic capture interval.
func (c CaptureConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Cooldown is the capture cooldown window, or a negative duration when
// it is disabled.
func (c CaptureConfig) Cooldown() time.Duration {
	if c.CooldownSeconds == 0 {
		return -1
	}
	return time.Duration(c.CooldownSeconds) * time.Second
}

// ProbeInterval is how often the window probe runs.
func (c CaptureConfig) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalMillis) * time.Millisecond
}

func (c IndexingConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

func (c IndexingConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSeconds) * time.Second
}

func (c IndexingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c IndexingConfig) Poll() time.Duration {
	return time.Duration(c.PollMillis) * time.Millisecond
}

func (c IndexingConfig) Sweep() time.Duration {
	return time.Duration(c.SweepSeconds) * time.Second
}

// HealthInterval is how often the supervised sidecar is health-checked.
func (c AnalysisConfig) HealthInterval() time.Duration {
	return time.Duration(c.HealthSeconds) * time.Second
}
