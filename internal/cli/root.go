/*
Package cli implements the command-line interface for monitome.

Each command is implemented as a separate function that returns a *cobra.Command,
allowing for clean separation and easy testing. Commands other than run,
init, verify and version talk to a running daemon through the control API.
*/
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/khanglvm/monitome/internal/config"
	"github.com/khanglvm/monitome/internal/control"
	"github.com/khanglvm/monitome/internal/version"
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	addr       string
	logLevel   string
	logFormat  string
}

var globals globalOptions

// NewRootCmd builds the monitome command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "monitome",
		Short: "Personal screen activity recorder with searchable history",
		Long: `monitome periodically captures the screen, asks a local analysis
service to describe what is on it, and indexes the result so you can
search your own activity later.

Captures are taken on a timer, when the active app or window changes,
and on demand. Analysis runs in the background with bounded concurrency
and retries, so a slow or restarting analysis service never blocks
capture.`,
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&globals.configPath, "config", "", "Config file (default: ~/.monitome.json)")
	pf.StringVar(&globals.addr, "addr", "", "Control API address of the running daemon (default: control.addr from config)")
	pf.StringVar(&globals.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&globals.logFormat, "log-format", "text", "Log format: text or json")

	root.AddCommand(
		NewRunCmd(),
		NewInitCmd(),
		NewStatusCmd(),
		NewCaptureCmd(),
		NewRecordCmd(),
		NewTriggersCmd(),
		NewSearchCmd(),
		NewExportCmd(),
		NewRulesCmd(),
		NewReindexCmd(),
		NewSummaryCmd(),
		NewMCPCmd(),
		NewVerifyCmd(),
		NewVersionCmd(),
	)

	return root
}

// setupLogging installs the process-wide logger. Logs always go to
// stderr so stdout stays clean for command output and MCP framing.
func setupLogging(w io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(globals.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: use debug, info, warn or error", globals.logLevel)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(globals.logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return fmt.Errorf("invalid --log-format %q: use text or json", globals.logFormat)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if globals.configPath != "" {
		return globals.configPath, nil
	}
	return config.GetDefaultConfigPath()
}

// loadConfig loads the config file, falling back to defaults when it
// does not exist.
func loadConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return config.Load(path)
}

// newClient returns a control API client for the running daemon.
func newClient() (*control.Client, error) {
	if globals.addr != "" {
		return control.NewClient(globals.addr), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return control.NewClient(cfg.Control.Addr), nil
}
