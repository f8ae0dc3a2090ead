package main

import (
	"github.com/spf13/cobra"

	"github.com/tigerroll/imagelink/internal/app"
)

var (
	runSessionID string
	runThreshold int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scan session in the foreground and print its summary",
	Long: `Runs the whole pipeline once: promote pending candidates, scan the catalog and the
image bucket, match, write links and candidates, then summarize.

Interrupting the command cancels the session at its next checkpoint.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var threshold *int
		if cmd.Flags().Changed("threshold") {
			threshold = &runThreshold
		}
		summary, err := app.RunOnce(cmd.Context(), options(), runSessionID, threshold)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), summary.SessionSummary())
	},
}

func init() {
	runCmd.Flags().StringVar(&runSessionID, "session-id", "", "session id to use (default: a new UUID)")
	runCmd.Flags().IntVar(&runThreshold, "threshold", 0, "minimum confidence for review candidates (0-100)")
	rootCmd.AddCommand(runCmd)
}

