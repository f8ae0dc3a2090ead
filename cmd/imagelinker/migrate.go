package main

import (
	"github.com/spf13/cobra"

	"github.com/tigerroll/imagelink/internal/app"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the linker schema migrations",
	Long: `Applies the embedded migrations to the catalog database and, when it is a different
connection, to the session database. Use --down to revert them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(envFilePath, config.EmbeddedConfig(embeddedConfig))
		if err != nil {
			return err
		}
		logger.SetLogLevel(cfg.Linker.System.Logging.Level)
		if err := app.Migrate(cmd.Context(), cfg, migrateDown); err != nil {
			return err
		}
		logger.Infof("Migrations finished.")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "revert every applied migration")
	rootCmd.AddCommand(migrateCmd)
}
