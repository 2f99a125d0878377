package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Provider names the authority that vouches for an identity
type Provider string

const (
	ProviderLocal   Provider = "local"
	ProviderGoogle  Provider = "google"
	ProviderOutlook Provider = "outlook"
)

// Valid reports whether p is one of the known providers
func (p Provider) Valid() bool {
	switch p {
	case ProviderLocal, ProviderGoogle, ProviderOutlook:
		return true
	}
	return false
}

func (p Provider) String() string {
	return string(p)
}

// Identity is the permanent account record
type Identity struct {
	bun.BaseModel `bun:"table:identities,alias:idt"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Email         string    `bun:"email,notnull,unique" json:"email"`
	FirstName     string    `bun:"first_name,notnull" json:"first_name"`
	LastName      string    `bun:"last_name,notnull" json:"last_name"`
	PasswordHash  string    `bun:"password_hash,notnull" json:"-"`
	Provider      Provider  `bun:"provider,notnull" json:"provider"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// IsLocal reports whether the identity authenticates with a password
func (i *Identity) IsLocal() bool {
	return i != nil && i.Provider == ProviderLocal
}

// ChangeKind discriminates the PendingChange variants
type ChangeKind string

const (
	ChangeRegistration  ChangeKind = "registration"
	ChangeEmail         ChangeKind = "email_change"
	ChangePasswordReset ChangeKind = "password_reset"
)

func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeRegistration, ChangeEmail, ChangePasswordReset:
		return true
	}
	return false
}

func (k ChangeKind) String() string {
	return string(k)
}

// ChangePayload is implemented by the kind specific payloads of a PendingChange
type ChangePayload interface {
	changeKind() ChangeKind
}

// RegistrationPayload is the staged state of an account not yet confirmed
type RegistrationPayload struct {
	FirstName    string
	LastName     string
	PasswordHash string
}

func (RegistrationPayload) changeKind() ChangeKind { return ChangeRegistration }

// EmailChangePayload stages a move of IdentityID to the PendingChange email
type EmailChangePayload struct {
	IdentityID   uuid.UUID
	FirstName    string
	LastName     string
	PasswordHash string
}

func (EmailChangePayload) changeKind() ChangeKind { return ChangeEmail }

// PasswordResetPayload carries the hash in force when the reset was requested
type PasswordResetPayload struct {
	IdentityID   uuid.UUID
	PasswordHash string
}

func (PasswordResetPayload) changeKind() ChangeKind { return ChangePasswordReset }

// PendingChange is a provisional record awaiting confirmation through its token.
type PendingChange struct {
	Kind      ChangeKind
	Token     string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
	payload   ChangePayload
}

// NewRegistration stages a new local account for email
func NewRegistration(token, email string, p RegistrationPayload, now time.Time, window time.Duration) *PendingChange {
	return newPendingChange(token, email, p, now, window)
}

// NewEmailChange stages moving an identity to newEmail
func NewEmailChange(token, newEmail string, p EmailChangePayload, now time.Time, window time.Duration) *PendingChange {
	return newPendingChange(token, newEmail, p, now, window)
}

// NewPasswordReset stages a password reset for email
func NewPasswordReset(token, email string, p PasswordResetPayload, now time.Time, window time.Duration) *PendingChange {
	return newPendingChange(token, email, p, now, window)
}

func newPendingChange(token, email string, p ChangePayload, now time.Time, window time.Duration) *PendingChange {
	now = now.UTC()
	return &PendingChange{
		Kind:      p.changeKind(),
		Token:     token,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(window),
		payload:   p,
	}
}

// Payload returns the kind specific payload
func (c *PendingChange) Payload() ChangePayload {
	return c.payload
}

func (c *PendingChange) Registration() (RegistrationPayload, bool) {
	p, ok := c.payload.(RegistrationPayload)
	return p, ok
}

func (c *PendingChange) EmailChange() (EmailChangePayload, bool) {
	p, ok := c.payload.(EmailChangePayload)
	return p, ok
}

func (c *PendingChange) PasswordReset() (PasswordResetPayload, bool) {
	p, ok := c.payload.(PasswordResetPayload)
	return p, ok
}

// Expired reports whether the change can no longer be completed at now.
// The record is expired at the instant ExpiresAt is reached.
func (c *PendingChange) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// AuthResponse is the result of a successful login or profile update
type AuthResponse struct {
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Provider  Provider `json:"authProvider"`
	Token     string   `json:"token"`
}

// ProfileFields are the mutable attributes of an identity
type ProfileFields struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	NewEmail  string `json:"newEmail"`
}

// ProfileResult is returned by a profile update. Response is nil when the
// update staged an email change.
type ProfileResult struct {
	Message  string        `json:"message"`
	Response *AuthResponse `json:"response,omitempty"`
}
