package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// stagedRecord is the flattened row of a PendingChange
type stagedRecord struct {
	bun.BaseModel `bun:"table:pending_changes,alias:pc"`
	Token         string        `bun:"token,pk"`
	Email         string        `bun:"email,notnull,unique"`
	Kind          ChangeKind    `bun:"kind,notnull"`
	IdentityID    uuid.NullUUID `bun:"identity_id,type:uuid"`
	FirstName     string        `bun:"first_name,notnull"`
	LastName      string        `bun:"last_name,notnull"`
	PasswordHash  string        `bun:"password_hash,notnull"`
	CreatedAt     time.Time     `bun:"created_at,notnull"`
	ExpiresAt     time.Time     `bun:"expires_at,notnull"`
}

func newStagedRecord(c *PendingChange) (*stagedRecord, error) {
	if c == nil {
		return nil, fmt.Errorf("pending change must not be nil")
	}

	rec := &stagedRecord{
		Token:     c.Token,
		Email:     c.Email,
		Kind:      c.Kind,
		CreatedAt: c.CreatedAt.UTC(),
		ExpiresAt: c.ExpiresAt.UTC(),
	}

	switch p := c.payload.(type) {
	case RegistrationPayload:
		rec.FirstName = p.FirstName
		rec.LastName = p.LastName
		rec.PasswordHash = p.PasswordHash
	case EmailChangePayload:
		rec.IdentityID = uuid.NullUUID{UUID: p.IdentityID, Valid: true}
		rec.FirstName = p.FirstName
		rec.LastName = p.LastName
		rec.PasswordHash = p.PasswordHash
	case PasswordResetPayload:
		rec.IdentityID = uuid.NullUUID{UUID: p.IdentityID, Valid: true}
		rec.PasswordHash = p.PasswordHash
	default:
		return nil, fmt.Errorf("unknown pending change payload %T", c.payload)
	}

	return rec, nil
}

func (r *stagedRecord) toPendingChange() (*PendingChange, error) {
	c := &PendingChange{
		Kind:      r.Kind,
		Token:     r.Token,
		Email:     r.Email,
		CreatedAt: r.CreatedAt.UTC(),
		ExpiresAt: r.ExpiresAt.UTC(),
	}

	switch r.Kind {
	case ChangeRegistration:
		c.payload = RegistrationPayload{
			FirstName:    r.FirstName,
			LastName:     r.LastName,
			PasswordHash: r.PasswordHash,
		}
	case ChangeEmail:
		if !r.IdentityID.Valid {
			return nil, fmt.Errorf("email change %s has no identity", r.Token)
		}
		c.payload = EmailChangePayload{
			IdentityID:   r.IdentityID.UUID,
			FirstName:    r.FirstName,
			LastName:     r.LastName,
			PasswordHash: r.PasswordHash,
		}
	case ChangePasswordReset:
		if !r.IdentityID.Valid {
			return nil, fmt.Errorf("password reset %s has no identity", r.Token)
		}
		c.payload = PasswordResetPayload{
			IdentityID:   r.IdentityID.UUID,
			PasswordHash: r.PasswordHash,
		}
	default:
		return nil, fmt.Errorf("unknown pending change kind %q", r.Kind)
	}

	return c, nil
}

// PendingChanges is the bun backed StagingStore. Uniqueness by email rests on
// the unique index of the pending_changes table.
type PendingChanges struct {
	db bun.IDB
}

var _ StagingStore = (*PendingChanges)(nil)

// NewPendingChangesRepository returns a StagingStore over db
func NewPendingChangesRepository(db bun.IDB) *PendingChanges {
	return &PendingChanges{db: db}
}

func (r *PendingChanges) GetByToken(ctx context.Context, token string) (*PendingChange, error) {
	return r.getBy(ctx, r.db, "token", token)
}

func (r *PendingChanges) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*PendingChange, error) {
	return r.getBy(ctx, tx, "email", email)
}

func (r *PendingChanges) getBy(ctx context.Context, tx bun.IDB, column, value string) (*PendingChange, error) {
	rec := &stagedRecord{}
	err := tx.NewSelect().
		Model(rec).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrNotFound("pending change not found")
		}
		return nil, ErrUnavailable(err, "failed to read pending change")
	}

	change, err := rec.toPendingChange()
	if err != nil {
		return nil, ErrUnavailable(err, "corrupt pending change")
	}
	return change, nil
}

func (r *PendingChanges) InsertIfAbsentTx(ctx context.Context, tx bun.IDB, change *PendingChange, now time.Time) error {
	rec, err := newStagedRecord(change)
	if err != nil {
		return ErrUnavailable(err, "invalid pending change")
	}

	if _, err := tx.NewDelete().
		Model((*stagedRecord)(nil)).
		Where("email = ?", rec.Email).
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx); err != nil {
		return ErrUnavailable(err, "failed to purge expired pending change")
	}

	res, err := tx.NewInsert().
		Model(rec).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict("a pending change already exists for this email").
				WithMetadata(map[string]any{"email": rec.Email})
		}
		return ErrUnavailable(err, "failed to stage pending change")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return ErrUnavailable(err, "failed to stage pending change")
	}

	if n == 0 {
		return ErrConflict("a pending change already exists for this email").
			WithMetadata(map[string]any{"email": rec.Email})
	}

	return nil
}

func (r *PendingChanges) ConsumeTx(ctx context.Context, tx bun.IDB, token string, kinds ...ChangeKind) (*PendingChange, error) {
	rec := &stagedRecord{}
	q := tx.NewSelect().
		Model(rec).
		Where("?TableAlias.token = ?", token)
	if len(kinds) > 0 {
		q = q.Where("?TableAlias.kind IN (?)", bun.In(kinds))
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrNotFound("invalid or already used token")
		}
		return nil, ErrUnavailable(err, "failed to read pending change")
	}

	res, err := tx.NewDelete().
		Model((*stagedRecord)(nil)).
		Where("token = ?", token).
		Exec(ctx)
	if err != nil {
		return nil, ErrUnavailable(err, "failed to consume pending change")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, ErrUnavailable(err, "failed to consume pending change")
	}

	// another transaction consumed the token between the read and the delete
	if n == 0 {
		return nil, ErrNotFound("invalid or already used token")
	}

	change, err := rec.toPendingChange()
	if err != nil {
		return nil, ErrUnavailable(err, "corrupt pending change")
	}
	return change, nil
}

func (r *PendingChanges) DeleteTx(ctx context.Context, tx bun.IDB, token string) error {
	_, err := tx.NewDelete().
		Model((*stagedRecord)(nil)).
		Where("token = ?", token).
		Exec(ctx)
	if err != nil {
		return ErrUnavailable(err, "failed to delete pending change")
	}
	return nil
}

// DeleteExpired removes every record whose expiry is before the given instant
func (r *PendingChanges) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*stagedRecord)(nil)).
		Where("expires_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, ErrUnavailable(err, "failed to delete expired pending changes")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, ErrUnavailable(err, "failed to delete expired pending changes")
	}

	return int(n), nil
}
