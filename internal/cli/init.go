package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/khanglvm/monitome/internal/config"
	"github.com/spf13/cobra"
)

// NewInitCmd creates the 'init' command that writes a default config.
func NewInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Long: `Write ~/.monitome.json (or --config) with every setting at its default.

An existing file is left alone unless --force is given; with --force the
previous file is kept as <path>.bak.`,
		Example: `  monitome init
  monitome init --force
  monitome init --config ./monitome.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config (a .bak backup is kept)")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	out := cmd.OutOrStdout()

	path, err := configPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := os.Stat(path); err == nil && !force {
		fmt.Fprintf(out, "%s Config already exists: %s\n", color.New(color.FgYellow).Sprint("!"), path)
		fmt.Fprintln(out, "  Use --force to overwrite it with defaults.")
		return nil
	}

	cfg := config.NewConfig()
	if err := config.Save(cfg, path); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Wrote %s\n", color.New(color.FgGreen).Sprint("✓"), path)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintf(out, "  1. Start the analysis service at %s (or set analysis.command)\n", cfg.Analysis.URL)
	fmt.Fprintln(out, "  2. Run the daemon:            monitome run")
	fmt.Fprintln(out, "  3. Add monitome to your AI client:")
	fmt.Fprintln(out, "       claude mcp add monitome -- monitome mcp")

	return nil
}
