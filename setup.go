package customerauth

import (
	"context"
	"database/sql"
	"io/fs"
	"sort"

	"github.com/goliatone/go-customer-auth/authflow"
	"github.com/goliatone/go-customer-auth/core"
	"github.com/goliatone/go-customer-auth/discovery"
	"github.com/goliatone/go-customer-auth/security"
	sqlstore "github.com/goliatone/go-customer-auth/store/sql"
	goerrors "github.com/goliatone/go-errors"
)

const migrationsRoot = "data/sql/migrations"

// Open builds a ready-to-use service backed by a single sqlite file at
// dbPath. It applies the embedded schema, provisions or loads the master
// key, and wires the discovery chain and the out-of-band authorization
// flow. Options are applied after the assembled defaults, so callers can
// still swap any dependency.
func Open(ctx context.Context, dbPath string, cfg Config, opts ...Option) (*Service, error) {
	db, err := sqlstore.OpenSQLite(dbPath)
	if err != nil {
		return nil, openError("open sqlite token store", err)
	}

	if err := applyEmbeddedSchema(ctx, db); err != nil {
		return nil, err
	}

	factory, err := sqlstore.NewRepositoryFactoryFromDB(db)
	if err != nil {
		return nil, openError("build sqlite store factory", err)
	}

	keyEngine, err := security.NewKeyEngine(ctx, factory.MasterKeyStore())
	if err != nil {
		return nil, openError("provision master key", err)
	}

	assembled := []Option{
		WithRepositoryFactory(factory),
		WithSecretProvider(keyEngine),
		WithEndpointResolver(discovery.New(cfg.Discovery,
			discovery.WithCacheStore(factory.EndpointCacheStore()),
		)),
		WithFlowEngine(authflow.New(cfg.Flow, cfg.ClientID, cfg.ClientName)),
	}

	return NewService(cfg, append(assembled, opts...)...)
}

// applyEmbeddedSchema runs the embedded up migrations in lexical order.
// The statements are idempotent, so reopening an existing store is safe.
func applyEmbeddedSchema(ctx context.Context, db sqlExecutor) error {
	names, err := fs.Glob(GetMigrationsFS(), migrationsRoot+"/*.up.sql")
	if err != nil {
		return openError("list embedded migrations", err)
	}
	sort.Strings(names)

	for _, name := range names {
		payload, readErr := fs.ReadFile(GetMigrationsFS(), name)
		if readErr != nil {
			return openError("read embedded migration "+name, readErr)
		}
		if _, execErr := db.ExecContext(ctx, string(payload)); execErr != nil {
			return openError("apply embedded migration "+name, execErr)
		}
	}
	return nil
}

type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func openError(operation string, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, goerrors.CategoryInternal, "customerauth: "+operation).
		WithTextCode(core.ErrorCodeInternal)
}
