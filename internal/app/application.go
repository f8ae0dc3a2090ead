// Package app assembles the fx applications behind the imagelinker commands.
package app

import (
	"context"
	"os"
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm"
	"github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm/mysql"
	"github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm/postgres"
	"github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm/sqlite"
	"github.com/tigerroll/imagelink/pkg/linker/adapter/storage"
	"github.com/tigerroll/imagelink/pkg/linker/adapter/storage/gcs"
	"github.com/tigerroll/imagelink/pkg/linker/adapter/storage/local"
	"github.com/tigerroll/imagelink/pkg/linker/adapter/storage/s3"
	"github.com/tigerroll/imagelink/pkg/linker/core/application/usecase"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	"github.com/tigerroll/imagelink/pkg/linker/engine/pipeline"
	"github.com/tigerroll/imagelink/pkg/linker/infrastructure/metrics"
	"github.com/tigerroll/imagelink/pkg/linker/infrastructure/repository/sql"
	"github.com/tigerroll/imagelink/pkg/linker/listener/notification"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
	transport "github.com/tigerroll/imagelink/pkg/linker/transport/http"
)

// DBProviderModules maps the names accepted in DB_ADAPTORS to their dialect modules.
var DBProviderModules = map[string]fx.Option{
	"postgres": postgres.Module,
	"mysql":    mysql.Module,
	"sqlite":   sqlite.Module,
}

// DefaultDBAdaptors is used when DB_ADAPTORS is unset.
const DefaultDBAdaptors = "postgres,mysql,sqlite"

// Options are the process-level inputs shared by every command.
type Options struct {
	EnvFilePath    string
	EmbeddedConfig config.EmbeddedConfig
	// DBAdaptors is a comma separated list of DBProviderModules keys.
	DBAdaptors string
}

// DBProviderOptions selects the dialect modules named in adaptors. Unknown names are
// logged and skipped.
func DBProviderOptions(adaptors string) []fx.Option {
	if adaptors == "" {
		adaptors = os.Getenv("DB_ADAPTORS")
	}
	if adaptors == "" {
		adaptors = DefaultDBAdaptors
	}

	options := make([]fx.Option, 0)
	for _, name := range strings.Split(adaptors, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if m, ok := DBProviderModules[name]; ok {
			options = append(options, m)
			logger.Debugf("DB Provider '%s' selected and registered.", name)
		} else {
			logger.Warnf("DB Provider '%s' is configured but not recognized/supported. Skipping.", name)
		}
	}
	return options
}

// coreOptions wires configuration, connections, repositories, observability and the
// pipeline. Callers add a launcher module and their entry point.
func coreOptions(opts Options) fx.Option {
	return fx.Options(
		fx.Supply(
			opts.EmbeddedConfig,
			fx.Annotate(opts.EnvFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		fx.Options(DBProviderOptions(opts.DBAdaptors)...),
		logger.Module,
		config.Module,
		gorm.Module,
		storage.Module,
		local.Module,
		gcs.Module,
		s3.Module,
		sql.Module,
		metrics.Module,
		notification.Module,
		pipeline.Module,
	)
}

// autoMigrate applies pending migrations on start when infrastructure.auto_migrate is set.
func autoMigrate(lc fx.Lifecycle, cfg *config.Config) {
	lc.Append(fx.Hook{OnStart: func(ctx context.Context) error {
		if !cfg.Linker.Infrastructure.AutoMigrate {
			return nil
		}
		return Migrate(ctx, cfg, false)
	}})
}

// NewServer builds the long-running HTTP service.
func NewServer(opts Options) *fx.App {
	return fx.New(
		coreOptions(opts),
		fx.Invoke(autoMigrate),
		usecase.Module,
		transport.Module,
	)
}

// RunOnce starts the application without the HTTP server, runs one session in the calling
// goroutine and stops. An empty sessionID gets a new one; a nil threshold uses the default.
func RunOnce(ctx context.Context, opts Options, sessionID string, threshold *int) (*pipeline.Summary, error) {
	var trigger *usecase.TriggerService
	app := fx.New(
		coreOptions(opts),
		fx.Invoke(autoMigrate),
		usecase.InlineModule,
		fx.Populate(&trigger),
	)
	if err := app.Start(ctx); err != nil {
		return nil, err
	}
	defer stop(app)

	h, err := trigger.Start(ctx, sessionID, threshold)
	if err != nil {
		return nil, err
	}
	return h.Wait(ctx)
}

// WithTrigger starts the application without the HTTP server and calls fn with its
// TriggerService. It backs the status and cancel commands.
func WithTrigger(ctx context.Context, opts Options, fn func(*usecase.TriggerService) error) error {
	var trigger *usecase.TriggerService
	app := fx.New(
		coreOptions(opts),
		usecase.InlineModule,
		fx.Populate(&trigger),
	)
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer stop(app)
	return fn(trigger)
}

func stop(app *fx.App) {
	ctx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		logger.Errorf("Failed to stop application: %v", err)
	}
}
