package app

import (
	"context"

	"github.com/hashicorp/go-multierror"

	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	"github.com/tigerroll/imagelink/pkg/linker/infrastructure/migration"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// MigrationRefs returns the distinct database connections that hold linker tables.
func MigrationRefs(cfg *config.Config) []string {
	infra := cfg.Linker.Infrastructure
	refs := []string{infra.CatalogDBRef}
	if infra.SessionDBRef != "" && infra.SessionDBRef != infra.CatalogDBRef {
		refs = append(refs, infra.SessionDBRef)
	}
	return refs
}

// Migrate applies, or with down reverts, the schema migrations on every connection
// returned by MigrationRefs. All connections are attempted; failures are combined.
func Migrate(ctx context.Context, cfg *config.Config, down bool) error {
	var result error
	for _, ref := range MigrationRefs(cfg) {
		m, err := migration.NewMigratorFromConfig(cfg, ref)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if down {
			logger.Infof("Reverting migrations on '%s'.", ref)
			err = m.Down(ctx)
		} else {
			logger.Infof("Applying migrations on '%s'.", ref)
			err = m.Up(ctx)
		}
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}
