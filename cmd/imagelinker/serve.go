package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tigerroll/imagelink/internal/app"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API that triggers and reports on scan sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fxApp := app.NewServer(options())
		if err := fxApp.Start(cmd.Context()); err != nil {
			return err
		}

		<-cmd.Context().Done()
		logger.Warnf("Received shutdown signal. Stopping active sessions...")

		ctx, cancel := context.WithTimeout(context.Background(), fxApp.StopTimeout())
		defer cancel()
		return fxApp.Stop(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
