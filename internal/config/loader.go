package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix prefixes environment overrides, e.g. MONITOME_INDEXING_WORKERS.
const envPrefix = "MONITOME"

// Load reads the configuration at path, or the default path when path is
// empty. A missing file yields the defaults. The result is validated.
func Load(path string) (*Config, error) {
	return load(path, false)
}

// LoadFrom reads the configuration at path. Unlike Load, a missing file
// is an error.
func LoadFrom(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, requireFile bool) (*Config, error) {
	if path == "" {
		p, err := GetDefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := NewConfig()

	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v, cfg)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	data, err := readFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if requireFile {
			return nil, &ConfigNotFoundError{
				Path: path,
				Hint: "run 'monitome init' to write the defaults",
			}
		}
	case err != nil:
		return nil, err
	default:
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, &InvalidConfigError{
				Path:    path,
				Message: fmt.Sprintf("JSON parse error: %v", err),
				Hint:    "restore " + path + ".bak if it exists, or run 'monitome init --force'",
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, &InvalidConfigError{
			Path:    path,
			Message: err.Error(),
			Hint:    "compare value types with the file written by 'monitome init'",
		}
	}

	// Viper lowercases map keys; environment variable names are case
	// sensitive, so the env map is taken from the raw file.
	cfg.Analysis.Env = map[string]string{}
	if data != nil {
		var raw struct {
			Analysis struct {
				Env map[string]string `json:"env"`
			} `json:"analysis"`
		}
		if err := json.Unmarshal(data, &raw); err == nil && raw.Analysis.Env != nil {
			cfg.Analysis.Env = raw.Analysis.Env
		}
	}

	if err := Validate(cfg); err != nil {
		var invalid *InvalidConfigError
		if errors.As(err, &invalid) {
			invalid.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("dataDir", cfg.DataDir)

	v.SetDefault("capture.intervalSeconds", cfg.Capture.IntervalSeconds)
	v.SetDefault("capture.cooldownSeconds", cfg.Capture.CooldownSeconds)
	v.SetDefault("capture.autoStart", cfg.Capture.AutoStart)
	v.SetDefault("capture.command", cfg.Capture.Command)
	v.SetDefault("capture.args", cfg.Capture.Args)
	v.SetDefault("capture.probeCommand", cfg.Capture.ProbeCommand)
	v.SetDefault("capture.probeArgs", cfg.Capture.ProbeArgs)
	v.SetDefault("capture.probeIntervalMillis", cfg.Capture.ProbeIntervalMillis)
	v.SetDefault("capture.permissionGranted", cfg.Capture.PermissionGranted)
	v.SetDefault("capture.accessibilityGranted", cfg.Capture.AccessibilityGranted)

	v.SetDefault("indexing.workers", cfg.Indexing.Workers)
	v.SetDefault("indexing.maxAttempts", cfg.Indexing.MaxAttempts)
	v.SetDefault("indexing.backoffSeconds", cfg.Indexing.BackoffSeconds)
	v.SetDefault("indexing.maxBackoffSeconds", cfg.Indexing.MaxBackoffSeconds)
	v.SetDefault("indexing.timeoutSeconds", cfg.Indexing.TimeoutSeconds)
	v.SetDefault("indexing.pollMillis", cfg.Indexing.PollMillis)
	v.SetDefault("indexing.sweepSeconds", cfg.Indexing.SweepSeconds)

	v.SetDefault("analysis.url", cfg.Analysis.URL)
	v.SetDefault("analysis.command", cfg.Analysis.Command)
	v.SetDefault("analysis.args", cfg.Analysis.Args)
	v.SetDefault("analysis.healthSeconds", cfg.Analysis.HealthSeconds)

	v.SetDefault("control.addr", cfg.Control.Addr)
}

// readFile reads path, mapping permission problems to PermissionError.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if os.IsNotExist(err) {
		return nil, os.ErrNotExist
	}
	if os.IsPermission(err) {
		return nil, &PermissionError{
			Path:    path,
			Op:      "read",
			Fix:     getReadPermissionFix(path),
			Details: getPermissionDetails(path),
		}
	}
	return nil, fmt.Errorf("failed to read config: %w", err)
}

// getReadPermissionFix returns platform-specific fix command
func getReadPermissionFix(path string) string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("Right-click %s → Properties → Security → Edit permissions", path)
	default: // unix-like
		return fmt.Sprintf("Run: chmod 600 %s", path)
	}
}

// getPermissionDetails checks file ownership and permissions
func getPermissionDetails(path string) string {
	if runtime.GOOS == "windows" {
		return "" // Not applicable on Windows
	}

	info, err := os.Stat(path)
	if err != nil {
		return ""
	}

	return fmt.Sprintf("Current permissions: %04o", info.Mode().Perm())
}
