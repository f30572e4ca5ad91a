package sqlstore

import "github.com/goliatone/go-customer-auth/core"

var (
	_ core.AuthorizationStore     = (*AuthorizationStore)(nil)
	_ core.EndpointCacheStore     = (*EndpointCacheStore)(nil)
	_ core.MasterKeyStore         = (*MasterKeyStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
