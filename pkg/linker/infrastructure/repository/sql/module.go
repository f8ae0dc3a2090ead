package sql

import (
	"go.uber.org/fx"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/database"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	repository "github.com/tigerroll/imagelink/pkg/linker/core/domain/repository"
)

// RepositoryParams are the inputs of the repository constructors.
type RepositoryParams struct {
	fx.In
	Config     *config.Config
	DBResolver database.DBConnectionResolver
	TxFactory  database.TransactionManagerFactory
}

// RepositoryResult exposes the domain repositories.
type RepositoryResult struct {
	fx.Out
	Catalog  repository.CatalogReader
	Images   repository.ImageRepository
	Sessions repository.SessionRepository
}

// NewRepositories binds the repositories to the configured connections. Images live in the
// catalog database; sessions may use a different one.
func NewRepositories(p RepositoryParams) RepositoryResult {
	infra := p.Config.Linker.Infrastructure
	return RepositoryResult{
		Catalog:  NewSQLCatalogRepository(p.DBResolver, infra.CatalogDBRef),
		Images:   NewSQLImageRepository(p.DBResolver, p.TxFactory.NewTransactionManager(infra.CatalogDBRef), infra.CatalogDBRef),
		Sessions: NewSQLSessionRepository(p.DBResolver, infra.SessionDBRef),
	}
}

// Module provides the SQL repositories.
var Module = fx.Provide(NewRepositories)
