package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes the stores and the transaction boundary
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Identities() IdentityStore
	PendingChanges() StagingStore
}

type mngr struct {
	db             *bun.DB
	identities     IdentityStore
	pendingChanges StagingStore
}

// NewRepositoryManager returns a manager with bun stores over db
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		identities:     NewIdentitiesRepository(db),
		pendingChanges: NewPendingChangesRepository(db),
	}
}

// NewRepositoryManagerWithStores composes a manager from explicit stores.
// Either store may be nil to keep the bun default.
func NewRepositoryManagerWithStores(db *bun.DB, identities IdentityStore, pending StagingStore) RepositoryManager {
	m := &mngr{
		db:             db,
		identities:     identities,
		pendingChanges: pending,
	}
	if m.identities == nil {
		m.identities = NewIdentitiesRepository(db)
	}
	if m.pendingChanges == nil {
		m.pendingChanges = NewPendingChangesRepository(db)
	}
	return m
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository database should be initialized")
	}

	if m.identities == nil {
		return errors.New("repository identities should be initialized")
	}

	if m.pendingChanges == nil {
		return errors.New("repository pendingChanges should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Identities() IdentityStore {
	return m.identities
}

func (m mngr) PendingChanges() StagingStore {
	return m.pendingChanges
}
