package sqlstore

import (
	"context"
	"fmt"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-resident/core"
	"github.com/uptrace/bun"
)

// RepositoryFactory owns the bun handle and the session activity ledger
// built on top of it.
type RepositoryFactory struct {
	db            *bun.DB
	retention     RetentionPolicy
	now           func() time.Time
	activityStore *ActivityStore
}

type FactoryOption func(*RepositoryFactory)

// WithRetention sets the policy applied by PruneActivity.
func WithRetention(policy RetentionPolicy) FactoryOption {
	return func(f *RepositoryFactory) {
		f.retention = policy
	}
}

func WithClock(now func() time.Time) FactoryOption {
	return func(f *RepositoryFactory) {
		if now != nil {
			f.now = now
		}
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	if client == nil {
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	}
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores binds the factory to a *bun.DB, or to a client exposing
// DB() *bun.DB, and creates the activity store once.
func (f *RepositoryFactory) BuildStores(source any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.activityStore != nil {
		return nil
	}
	db, err := bunDBFrom(source)
	if err != nil {
		return err
	}
	store, err := NewActivityStore(db)
	if err != nil {
		return err
	}
	if f.now != nil {
		store.now = f.now
	}
	f.db = db
	f.activityStore = store
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) ActivityStore() *ActivityStore {
	if f == nil {
		return nil
	}
	return f.activityStore
}

// ManagerOptions plugs the activity ledger into a core.Manager.
func (f *RepositoryFactory) ManagerOptions() []core.Option {
	if f == nil || f.activityStore == nil {
		return nil
	}
	return []core.Option{core.WithActivitySink(f.activityStore)}
}

// Retention reports the configured retention policy.
func (f *RepositoryFactory) Retention() RetentionPolicy {
	if f == nil {
		return RetentionPolicy{}
	}
	return f.retention
}

// PruneActivity applies the configured retention policy.
func (f *RepositoryFactory) PruneActivity(ctx context.Context) (int, error) {
	return f.Prune(ctx, f.Retention())
}

// Prune applies policy to the activity ledger.
func (f *RepositoryFactory) Prune(ctx context.Context, policy RetentionPolicy) (int, error) {
	if f == nil || f.activityStore == nil {
		return 0, fmt.Errorf("sqlstore: activity store is not built")
	}
	return f.activityStore.Prune(ctx, policy)
}

func bunDBFrom(source any) (*bun.DB, error) {
	var db *bun.DB
	switch typed := source.(type) {
	case *bun.DB:
		db = typed
	case interface{ DB() *bun.DB }:
		db = typed.DB()
	case nil:
	default:
		return nil, fmt.Errorf("sqlstore: cannot take a bun db from %T", source)
	}
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return db, nil
}
