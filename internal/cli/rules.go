package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewRulesCmd creates the 'rules' command group for learned extraction rules.
func NewRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage learned extraction rules",
		Long: `Learned rules are corrections appended to every extraction request,
for example "Ghostty is a terminal emulator". A new rule applies to
screenshots analyzed after it is added.`,
	}

	cmd.AddCommand(newRulesAddCmd(), newRulesListCmd())
	return cmd
}

func newRulesAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "add <rule>",
		Short:   "Add a rule",
		Example: `  monitome rules add "Ghostty is a terminal emulator"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return fmt.Errorf("rule text is required")
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			rule, err := client.Learn(cmd.Context(), text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Rule #%d saved\n", color.New(color.FgGreen).Sprint("✓"), rule.ID)
			return nil
		},
	}
}

func newRulesListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			rules, err := client.Rules(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, rules)
			}
			if len(rules) == 0 {
				fmt.Fprintln(out, "No rules learned yet.")
				fmt.Fprintln(out, "Add one with: monitome rules add \"<correction>\"")
				return nil
			}

			fmt.Fprintf(out, "Learned rules (%d):\n\n", len(rules))
			for _, r := range rules {
				fmt.Fprintf(out, "  %3d  %s  %s\n", r.ID,
					color.New(color.Faint).Sprint(r.CreatedAt.Local().Format("2006-01-02")), r.Text)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}
