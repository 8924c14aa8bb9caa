package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/khanglvm/monitome/internal/capture"
	"github.com/khanglvm/monitome/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewCaptureCmd creates the 'capture' command that takes a screenshot now.
func NewCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Take a screenshot now",
		Long: `Ask the daemon for an immediate capture. Manual captures skip the
cooldown but still require recording to be on.`,
		Example: `  monitome capture`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			shot, err := client.CaptureNow(cmd.Context())
			if errors.Is(err, pipeline.ErrRecordingDisabled) {
				return fmt.Errorf("%w; run 'monitome record on' first", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Captured %s at %s %s\n",
				color.New(color.FgGreen).Sprint("✓"), shot.ID, shot.Date, shot.Time)
			return nil
		},
	}

	return cmd
}

// NewRecordCmd creates the 'record' command that controls recording.
func NewRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "record on|off|toggle",
		Short:     "Turn recording on or off",
		Long:      `Turn periodic and event-triggered capture on or off. The setting survives restarts.`,
		Example:   "  monitome record on\n  monitome record toggle",
		ValidArgs: []string{"on", "off", "toggle"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			var enabled bool
			switch args[0] {
			case "toggle":
				enabled, err = client.ToggleRecording(cmd.Context())
			default:
				enabled = args[0] == "on"
				err = client.SetRecording(cmd.Context(), enabled)
			}
			if errors.Is(err, capture.ErrPermissionDenied) {
				return fmt.Errorf("%w; grant screen recording permission and set capture.permissionGranted", err)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Recording %s\n", onOff(enabled))
			return nil
		},
	}

	return cmd
}

// NewTriggersCmd creates the 'triggers' command that controls
// event-triggered capture.
func NewTriggersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triggers on|off",
		Short: "Turn capture on app and window switches on or off",
		Long: `Turn event-triggered capture on or off. Events only cause captures
while recording is also on.`,
		Example:   "  monitome triggers off",
		ValidArgs: []string{"on", "off"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			enabled := args[0] == "on"
			if err := client.SetEventTriggers(cmd.Context(), enabled); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Event triggers %s\n", onOff(enabled))
			return nil
		},
	}

	return cmd
}
