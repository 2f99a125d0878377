package repository

import (
	accounts "github.com/goliatone/go-accounts"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

type options struct {
	identities accounts.IdentityStore
	staging    accounts.StagingStore
}

// Option configures NewRepositoryManager
type Option func(*options)

// WithStagingStore replaces the bun pending_changes table
func WithStagingStore(store accounts.StagingStore) Option {
	return func(o *options) {
		o.staging = store
	}
}

// WithRedisStaging keeps pending changes in Redis
func WithRedisStaging(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.staging = NewRedisStaging(client)
		}
	}
}

func WithIdentityStore(store accounts.IdentityStore) Option {
	return func(o *options) {
		o.identities = store
	}
}

// NewRepositoryManager returns a manager over db. Stores not replaced by an
// option use the bun implementations.
func NewRepositoryManager(db *bun.DB, opts ...Option) accounts.RepositoryManager {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return accounts.NewRepositoryManagerWithStores(db, o.identities, o.staging)
}
