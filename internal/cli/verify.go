package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/fatih/color"
	"github.com/khanglvm/monitome/internal/config"
	"github.com/khanglvm/monitome/internal/control"
	"github.com/khanglvm/monitome/internal/extraction"
	"github.com/spf13/cobra"
)

// NewVerifyCmd creates the 'verify' command for verifying configuration.
func NewVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify configuration and connections",
		Long: `Verify that the configuration is valid, the capture tools are
installed, the data directory is writable, and the analysis service and
daemon are reachable.`,
		Example: `  monitome verify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), cmd.OutOrStdout())
		},
	}

	return cmd
}

// runVerify validates the configuration and probes its dependencies. It
// fails only on problems that stop the daemon from starting.
func runVerify(ctx context.Context, out io.Writer) error {
	ok := color.New(color.FgGreen).Sprint("✓")
	bad := color.New(color.FgRed).Sprint("✗")
	warn := color.New(color.FgYellow).Sprint("!")

	path, err := configPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(out, "%s Config file: %s\n", bad, path)
		var invalid *config.InvalidConfigError
		if errors.As(err, &invalid) {
			for _, key := range invalid.Keys() {
				fmt.Fprintf(out, "  %s %s\n", bad, key)
			}
		}
		return fmt.Errorf("configuration error: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(out, "%s Config file: %s (not found, using defaults)\n", warn, path)
	} else {
		fmt.Fprintf(out, "%s Config file: %s\n", ok, path)
	}

	fatal := 0

	dataDir, err := cfg.ResolveDataDir()
	if err == nil {
		err = checkWritableDir(dataDir)
	}
	if err != nil {
		fmt.Fprintf(out, "%s Data directory: %v\n", bad, err)
		fatal++
	} else {
		fmt.Fprintf(out, "%s Data directory: %s\n", ok, dataDir)
	}

	if p, err := exec.LookPath(cfg.Capture.Command); err != nil {
		fmt.Fprintf(out, "%s Capture command: %s not found on PATH\n", bad, cfg.Capture.Command)
		fatal++
	} else {
		fmt.Fprintf(out, "%s Capture command: %s\n", ok, p)
	}

	if cfg.Capture.ProbeCommand != "" {
		if p, err := exec.LookPath(cfg.Capture.ProbeCommand); err != nil {
			fmt.Fprintf(out, "%s Window probe: %s not found on PATH; app switches will not trigger captures\n", warn, cfg.Capture.ProbeCommand)
		} else {
			fmt.Fprintf(out, "%s Window probe: %s\n", ok, p)
		}
	}

	if cfg.Analysis.Command != "" {
		if p, err := exec.LookPath(cfg.Analysis.Command); err != nil {
			fmt.Fprintf(out, "%s Analysis command: %s not found on PATH\n", bad, cfg.Analysis.Command)
			fatal++
		} else {
			fmt.Fprintf(out, "%s Analysis command: %s\n", ok, p)
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := extraction.NewHTTPClient(cfg.Analysis.URL).Health(probeCtx); err != nil {
		fmt.Fprintf(out, "%s Analysis service: %s unreachable (%v)\n", warn, cfg.Analysis.URL, err)
	} else {
		fmt.Fprintf(out, "%s Analysis service: %s\n", ok, cfg.Analysis.URL)
	}

	addr := cfg.Control.Addr
	if globals.addr != "" {
		addr = globals.addr
	}
	if v, err := control.NewClient(addr).Health(probeCtx); err != nil {
		fmt.Fprintf(out, "%s Daemon: not running at %s (start it with 'monitome run')\n", warn, addr)
	} else {
		fmt.Fprintf(out, "%s Daemon: running at %s (version %s)\n", ok, addr, v)
	}

	if fatal > 0 {
		return fmt.Errorf("%d problems found", fatal)
	}
	return nil
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
