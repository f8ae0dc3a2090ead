// Command imagelinker links storefront products to the images found in object storage.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	"github.com/spf13/cobra"

	"github.com/tigerroll/imagelink/internal/app"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

var (
	envFilePath string
	dbAdaptors  string
)

var rootCmd = &cobra.Command{
	Use:           "imagelinker",
	Short:         "Match product images in object storage to catalog products",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultEnv := os.Getenv("ENV_FILE_PATH")
	if defaultEnv == "" {
		defaultEnv = ".env"
	}
	rootCmd.PersistentFlags().StringVar(&envFilePath, "env-file", defaultEnv, "path of the .env file")
	rootCmd.PersistentFlags().StringVar(&dbAdaptors, "db-adaptors", os.Getenv("DB_ADAPTORS"),
		"comma separated database dialects to register (default "+app.DefaultDBAdaptors+")")
}

func options() app.Options {
	return app.Options{
		EnvFilePath:    envFilePath,
		EmbeddedConfig: config.EmbeddedConfig(embeddedConfig),
		DBAdaptors:     dbAdaptors,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	_ = logger.Sync()
	if err != nil {
		logger.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
