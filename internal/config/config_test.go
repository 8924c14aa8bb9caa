package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Capture.IntervalSeconds != 60 {
		t.Errorf("Default IntervalSeconds should be 60, got %d", cfg.Capture.IntervalSeconds)
	}
	if cfg.Capture.CooldownSeconds != 5 {
		t.Errorf("Default CooldownSeconds should be 5, got %d", cfg.Capture.CooldownSeconds)
	}
	if !cfg.Capture.AutoStart {
		t.Error("Default AutoStart should be true")
	}
	if cfg.Indexing.Workers != 2 || cfg.Indexing.MaxAttempts != 3 {
		t.Errorf("unexpected indexing defaults: %+v", cfg.Indexing)
	}
	if cfg.Analysis.URL != "http://127.0.0.1:8420" {
		t.Errorf("unexpected analysis url %q", cfg.Analysis.URL)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestDurations(t *testing.T) {
	cfg := NewConfig()

	if got := cfg.Capture.Interval(); got != time.Minute {
		t.Errorf("Interval() = %v", got)
	}
	if got := cfg.Capture.Cooldown(); got != 5*time.Second {
		t.Errorf("Cooldown() = %v", got)
	}
	if got := cfg.Indexing.Poll(); got != 500*time.Millisecond {
		t.Errorf("Poll() = %v", got)
	}

	// Zero cooldown disables it rather than falling back to a default.
	cfg.Capture.CooldownSeconds = 0
	if got := cfg.Capture.Cooldown(); got >= 0 {
		t.Errorf("Cooldown() with 0 seconds should be negative, got %v", got)
	}
}

func TestResolveDataDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	cfg := NewConfig()
	dir, err := cfg.ResolveDataDir()
	if err != nil {
		t.Fatalf("ResolveDataDir failed: %v", err)
	}
	if dir != filepath.Join(home, ".monitome") {
		t.Errorf("unexpected data dir %q", dir)
	}

	cfg.DataDir = "relative/data"
	dir, err = cfg.ResolveDataDir()
	if err != nil {
		t.Fatalf("ResolveDataDir failed: %v", err)
	}
	if !filepath.IsAbs(dir) || !strings.HasSuffix(dir, filepath.Join("relative", "data")) {
		t.Errorf("expected absolute path, got %q", dir)
	}
}

func TestSaveAndLoad(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ".monitome.json")

	cfg := NewConfig()
	cfg.DataDir = "/var/lib/monitome"
	cfg.Capture.CooldownSeconds = 10
	cfg.Capture.ProbeCommand = "frontmost"
	cfg.Indexing.Workers = 4
	cfg.Analysis.Command = "python3"
	cfg.Analysis.Args = []string{"-m", "analyzer"}
	cfg.Analysis.Env = map[string]string{"OPENAI_API_KEY": "sk-test"}

	if err := Save(cfg, configPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if loaded.DataDir != "/var/lib/monitome" {
		t.Errorf("DataDir = %q", loaded.DataDir)
	}
	if loaded.Capture.CooldownSeconds != 10 || loaded.Capture.ProbeCommand != "frontmost" {
		t.Errorf("unexpected capture config %+v", loaded.Capture)
	}
	if loaded.Indexing.Workers != 4 {
		t.Errorf("Workers = %d", loaded.Indexing.Workers)
	}
	if len(loaded.Analysis.Args) != 2 || loaded.Analysis.Args[1] != "analyzer" {
		t.Errorf("unexpected analysis args %v", loaded.Analysis.Args)
	}
	if loaded.Analysis.Env["OPENAI_API_KEY"] != "sk-test" {
		t.Errorf("env keys must keep their case, got %v", loaded.Analysis.Env)
	}
}

func TestLoadNonExistent(t *testing.T) {
	_, err := LoadFrom("/nonexistent/path/config.json")
	if err == nil {
		t.Error("LoadFrom should fail for non-existent file")
	}
}
