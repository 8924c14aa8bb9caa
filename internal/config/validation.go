package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks value ranges. It returns an *InvalidConfigError listing
// every problem found.
func Validate(cfg *Config) error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(cfg.DataDir) == "" {
		add("dataDir: must not be empty")
	}

	c := cfg.Capture
	if c.IntervalSeconds <= 0 {
		add("capture.intervalSeconds: must be positive, got %d", c.IntervalSeconds)
	}
	if c.CooldownSeconds < 0 {
		add("capture.cooldownSeconds: must not be negative, got %d", c.CooldownSeconds)
	}
	if strings.TrimSpace(c.Command) == "" {
		add("capture.command: must not be empty")
	}
	if c.ProbeIntervalMillis <= 0 {
		add("capture.probeIntervalMillis: must be positive, got %d", c.ProbeIntervalMillis)
	}

	ix := cfg.Indexing
	if ix.Workers <= 0 {
		add("indexing.workers: must be positive, got %d", ix.Workers)
	}
	if ix.MaxAttempts <= 0 {
		add("indexing.maxAttempts: must be positive, got %d", ix.MaxAttempts)
	}
	if ix.TimeoutSeconds <= 0 {
		add("indexing.timeoutSeconds: must be positive, got %d", ix.TimeoutSeconds)
	}
	if ix.BackoffSeconds < 0 || ix.MaxBackoffSeconds < 0 {
		add("indexing.backoffSeconds: must not be negative")
	}
	if ix.MaxBackoffSeconds > 0 && ix.MaxBackoffSeconds < ix.BackoffSeconds {
		add("indexing.maxBackoffSeconds: must be at least backoffSeconds (%d)", ix.BackoffSeconds)
	}
	if ix.PollMillis < 0 || ix.SweepSeconds < 0 {
		add("indexing.pollMillis: poll and sweep intervals must not be negative")
	}

	if u, err := url.Parse(cfg.Analysis.URL); err != nil || u.Scheme == "" || u.Host == "" {
		add("analysis.url: must be an absolute URL, got %q", cfg.Analysis.URL)
	}
	if cfg.Analysis.HealthSeconds < 0 {
		add("analysis.healthSeconds: must not be negative, got %d", cfg.Analysis.HealthSeconds)
	}

	if _, _, err := net.SplitHostPort(cfg.Control.Addr); err != nil {
		add("control.addr: %v", err)
	}

	if len(problems) == 0 {
		return nil
	}
	return &InvalidConfigError{
		Problems: problems,
		Hint:     "fix the listed keys or run 'monitome init --force' to restore defaults",
	}
}
