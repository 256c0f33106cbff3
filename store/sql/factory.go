package sqlstore

import (
	"context"
	"fmt"

	"github.com/ChasLui/nocodb/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds and hands out the durable stores over one
// bun database. It doubles as the core.StoreProvider: RunInTx yields a
// provider whose stores share a single transaction.
type RepositoryFactory struct {
	db *bun.DB
	tx *bun.Tx

	integrationStore *IntegrationStore
	sourceStore      *SourceStore
	baseStore        *BaseStore
	outboxStore      *OutboxStore
	activityStore    *ActivityStore
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
	if f.integrationStore != nil && f.sourceStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) Integrations() core.IntegrationStore {
	if f == nil {
		return nil
	}
	return f.integrationStore
}

func (f *RepositoryFactory) Sources() core.SourceStore {
	if f == nil {
		return nil
	}
	return f.sourceStore
}

func (f *RepositoryFactory) Bases() core.BaseStore {
	if f == nil {
		return nil
	}
	return f.baseStore
}

func (f *RepositoryFactory) Outbox() core.OutboxStore {
	if f == nil {
		return nil
	}
	return f.outboxStore
}

func (f *RepositoryFactory) ActivityStore() *ActivityStore {
	if f == nil {
		return nil
	}
	return f.activityStore
}

func (f *RepositoryFactory) SourceStore() *SourceStore {
	if f == nil {
		return nil
	}
	return f.sourceStore
}

func (f *RepositoryFactory) BaseStore() *BaseStore {
	if f == nil {
		return nil
	}
	return f.baseStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

// RunInTx runs fn against a provider bound to one transaction. Nested
// calls reuse the surrounding transaction instead of opening another.
func (f *RepositoryFactory) RunInTx(ctx context.Context, fn func(ctx context.Context, tx core.StoreProvider) error) error {
	if f == nil || f.db == nil {
		return fmt.Errorf("sqlstore: repository factory is not configured")
	}
	if fn == nil {
		return fmt.Errorf("sqlstore: transaction callback is required")
	}
	if f.tx != nil {
		return fn(ctx, f)
	}
	return f.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, f.withTx(tx))
	})
}

func (f *RepositoryFactory) withTx(tx bun.Tx) *RepositoryFactory {
	return &RepositoryFactory{
		db:               f.db,
		tx:               &tx,
		integrationStore: f.integrationStore.withTx(tx),
		sourceStore:      f.sourceStore.withTx(tx),
		baseStore:        f.baseStore.withTx(tx),
		outboxStore:      f.outboxStore.withTx(tx),
		activityStore:    f.activityStore,
	}
}

func (f *RepositoryFactory) initStores() error {
	integrationStore, err := NewIntegrationStore(f.db)
	if err != nil {
		return err
	}
	f.integrationStore = integrationStore

	sourceStore, err := NewSourceStore(f.db)
	if err != nil {
		return err
	}
	f.sourceStore = sourceStore

	baseStore, err := NewBaseStore(f.db)
	if err != nil {
		return err
	}
	f.baseStore = baseStore

	outboxStore, err := NewOutboxStore(f.db)
	if err != nil {
		return err
	}
	f.outboxStore = outboxStore

	activityStore, err := NewActivityStore(f.db)
	if err != nil {
		return err
	}
	f.activityStore = activityStore

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
