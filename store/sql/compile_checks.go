package sqlstore

import "github.com/ChasLui/nocodb/core"

var (
	_ core.IntegrationStore       = (*IntegrationStore)(nil)
	_ core.SourceStore            = (*SourceStore)(nil)
	_ core.BaseStore              = (*BaseStore)(nil)
	_ core.OutboxStore            = (*OutboxStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
