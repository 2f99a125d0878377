package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Logger is the logging contract used across the package. Arguments after
// the message are key/value pairs, so a glog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the options consumed by the workflows and the token service.
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() time.Duration
	GetIssuer() string
	GetRegistrationWindow() time.Duration
	GetPasswordResetWindow() time.Duration
	GetFrontendURL() string
	GetStrictOAuthProvider() bool
}

// IdentityStore is the durable mapping from email to Identity.
type IdentityStore interface {
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Identity, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Identity, error)
	CreateTx(ctx context.Context, tx bun.IDB, identity *Identity) (*Identity, error)
	UpdateProfileTx(ctx context.Context, tx bun.IDB, identity *Identity) error
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
}

// StagingStore is the durable mapping from single-use token to PendingChange.
// Implementations guarantee uniqueness by token and by email.
type StagingStore interface {
	GetByToken(ctx context.Context, token string) (*PendingChange, error)
	// GetByEmailTx returns the record staged for email, expired or not. It
	// completes the lookup side of the store contract next to GetByToken.
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*PendingChange, error)
	// InsertIfAbsentTx stores change unless a live record exists for the same
	// email. Expired records for that email are purged first.
	InsertIfAbsentTx(ctx context.Context, tx bun.IDB, change *PendingChange, now time.Time) error
	// ConsumeTx reads and deletes the record for token, restricted to kinds.
	// It fails with ErrNotFound when the record is absent or another caller
	// consumed it first.
	ConsumeTx(ctx context.Context, tx bun.IDB, token string, kinds ...ChangeKind) (*PendingChange, error)
	// DeleteTx removes the record for token without reading it. Deleting a
	// missing token is not an error.
	DeleteTx(ctx context.Context, tx bun.IDB, token string) error
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// PasswordHasher hashes and compares passwords.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] ACCOUNTS " + line(msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] ACCOUNTS " + line(msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] ACCOUNTS " + line(msg, args))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] ACCOUNTS " + line(msg, args))
}

func line(msg string, args []any) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&sb, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&sb, " %v", args[i])
	}
	sb.WriteString("\n")
	return sb.String()
}

type clock func() time.Time

func defaultClock() time.Time {
	return time.Now().UTC()
}
