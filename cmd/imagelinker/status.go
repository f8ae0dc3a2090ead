package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/tigerroll/imagelink/internal/app"
	"github.com/tigerroll/imagelink/pkg/linker/core/application/usecase"
)

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Print the progress of a scan session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.WithTrigger(cmd.Context(), options(), func(trigger *usecase.TriggerService) error {
			view, err := trigger.Progress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel a running scan session",
	Long: `Marks the session as cancelled. The process running it stops at its next
checkpoint, which may be a different process than this one.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.WithTrigger(cmd.Context(), options(), func(trigger *usecase.TriggerService) error {
			ok, err := trigger.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"sessionId": args[0], "cancelled": ok})
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, cancelCmd)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
