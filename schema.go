package accounts

import (
	"context"

	"github.com/uptrace/bun"
)

// CreateSchema creates the identities and pending_changes tables and their
// indexes when missing.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*Identity)(nil),
		(*stagedRecord)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return ErrUnavailable(err, "failed to create table")
		}
	}

	if _, err := db.NewCreateIndex().
		Model((*stagedRecord)(nil)).
		Index("pending_changes_expires_at_idx").
		Column("expires_at").
		IfNotExists().
		Exec(ctx); err != nil {
		return ErrUnavailable(err, "failed to create expiry index")
	}

	return nil
}
