package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

var UpdateIdentityPasswordSQL = `UPDATE "identities" AS "idt"
SET
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"idt"."id" = ?
RETURNING *;`

// Identities is the bun backed IdentityStore
type Identities struct {
	repo repository.Repository[*Identity]
	db   bun.IDB
	now  clock
}

var _ IdentityStore = (*Identities)(nil)

// NewIdentitiesRepository returns an IdentityStore over db
func NewIdentitiesRepository(db *bun.DB) *Identities {
	repo := repository.NewRepository[*Identity](db, repository.ModelHandlers[*Identity]{
		NewRecord: func() *Identity { return &Identity{} },
		GetID: func(i *Identity) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID: func(i *Identity, id uuid.UUID) {
			if i != nil {
				i.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &Identities{
		repo: repo,
		db:   db,
		now:  defaultClock,
	}
}

// WithClock overrides the time source used for timestamps
func (r *Identities) WithClock(now func() time.Time) *Identities {
	if now != nil {
		r.now = now
	}
	return r
}

func (r *Identities) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	return r.GetByEmailTx(ctx, r.db, email)
}

func (r *Identities) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Identity, error) {
	return r.getBy(ctx, tx, "email", email)
}

func (r *Identities) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Identity, error) {
	return r.getBy(ctx, tx, "id", id.String())
}

func (r *Identities) getBy(ctx context.Context, tx bun.IDB, column, value string) (*Identity, error) {
	record := &Identity{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrNotFound("identity not found").
				WithMetadata(map[string]any{column: value})
		}
		return nil, ErrUnavailable(err, "failed to read identity")
	}

	return record, nil
}

// CreateTx inserts identity. An email already in use is reported as a conflict.
func (r *Identities) CreateTx(ctx context.Context, tx bun.IDB, identity *Identity) (*Identity, error) {
	now := r.now()
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now

	created, err := r.repo.CreateTx(ctx, tx, identity)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict("email already registered").
				WithMetadata(map[string]any{"email": identity.Email})
		}
		return nil, ErrUnavailable(err, "failed to create identity")
	}

	return created, nil
}

// UpdateProfileTx writes the email and names of identity
func (r *Identities) UpdateProfileTx(ctx context.Context, tx bun.IDB, identity *Identity) error {
	identity.UpdatedAt = r.now()

	res, err := tx.NewUpdate().
		Model(identity).
		Column("email", "first_name", "last_name", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict("email already registered").
				WithMetadata(map[string]any{"email": identity.Email})
		}
		return ErrUnavailable(err, "failed to update identity")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound("identity not found").
			WithMetadata(map[string]any{"id": identity.ID.String()})
	}

	return nil
}

func (r *Identities) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := r.repo.RawTx(ctx, tx, UpdateIdentityPasswordSQL, passwordHash, r.now(), id.String())
	if err != nil {
		return ErrUnavailable(err, "failed to update identity password")
	}

	if len(res) == 0 {
		return ErrNotFound("identity not found").
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
