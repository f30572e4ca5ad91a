package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-customer-auth/core"
)

type RepositoryFactory struct {
	db *bun.DB

	authorizationStore *AuthorizationStore
	endpointCacheStore *EndpointCacheStore
	masterKeyStore     *MasterKeyStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.authorizationStore != nil && f.endpointCacheStore != nil && f.masterKeyStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) AuthorizationStore() core.AuthorizationStore {
	if f == nil {
		return nil
	}
	return f.authorizationStore
}

func (f *RepositoryFactory) EndpointCacheStore() core.EndpointCacheStore {
	if f == nil {
		return nil
	}
	return f.endpointCacheStore
}

func (f *RepositoryFactory) MasterKeyStore() core.MasterKeyStore {
	if f == nil {
		return nil
	}
	return f.masterKeyStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	authorizationRepo := repository.NewRepository[*authorizationRecord](f.db, authorizationHandlers())
	if validator, ok := authorizationRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid authorization repository wiring: %w", err)
		}
	}

	endpointCacheRepo := repository.NewRepository[*endpointCacheRecord](f.db, endpointCacheHandlers())
	if validator, ok := endpointCacheRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid endpoint cache repository wiring: %w", err)
		}
	}

	f.authorizationStore = &AuthorizationStore{
		db:   f.db,
		repo: authorizationRepo,
	}
	f.endpointCacheStore = &EndpointCacheStore{
		db:   f.db,
		repo: endpointCacheRepo,
	}
	f.masterKeyStore = &MasterKeyStore{db: f.db}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
