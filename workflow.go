package accounts

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/oauth"
	"github.com/google/uuid"
)

const (
	// DefaultRegistrationWindow bounds registrations and email changes
	DefaultRegistrationWindow = 24 * time.Hour
	// DefaultPasswordResetWindow bounds password resets
	DefaultPasswordResetWindow = 30 * time.Minute

	handlerTimeout = 10 * time.Second
	notifyTimeout  = 30 * time.Second
)

// OAuthVerifier resolves a provider credential into verified claims.
// *oauth.Registry satisfies it.
type OAuthVerifier interface {
	Verify(ctx context.Context, provider, credential string) (*oauth.Claims, error)
}

// Dependencies are the collaborators shared by the workflow handlers
type Dependencies struct {
	Repo      RepositoryManager
	Config    Config
	Hasher    PasswordHasher
	Tokens    *TokenService
	Notifier  Notifier
	Verifiers OAuthVerifier
	Logger    Logger
	Now       func() time.Time
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = defLogger{}
	}
	if d.Hasher == nil {
		d.Hasher = NewBcryptHasher(0)
	}
	if d.Notifier == nil {
		d.Notifier = NewLogNotifier(nil)
	}
	if d.Now == nil {
		d.Now = defaultClock
	}
	if d.Tokens == nil && d.Config != nil {
		d.Tokens = NewTokenService(d.Config, d.Logger).WithClock(d.Now)
	}
	return d
}

func (d Dependencies) registrationWindow() time.Duration {
	if d.Config != nil && d.Config.GetRegistrationWindow() > 0 {
		return d.Config.GetRegistrationWindow()
	}
	return DefaultRegistrationWindow
}

func (d Dependencies) passwordResetWindow() time.Duration {
	if d.Config != nil && d.Config.GetPasswordResetWindow() > 0 {
		return d.Config.GetPasswordResetWindow()
	}
	return DefaultPasswordResetWindow
}

func (d Dependencies) frontendURL() string {
	if d.Config == nil {
		return ""
	}
	return d.Config.GetFrontendURL()
}

// notify sends n without blocking the caller. The send outlives the request
// context.
func (d Dependencies) notify(ctx context.Context, n Notification) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()

		if err := d.Notifier.Send(ctx, n); err != nil {
			d.Logger.Error("notification delivery failed", "kind", n.Kind, "to", n.To, "error", err)
			return
		}
		d.Logger.Debug("notification sent", "kind", n.Kind, "to", n.To)
	}()
}

// notifyChange sends the confirmation link of change to its target email
func (d Dependencies) notifyChange(ctx context.Context, change *PendingChange) {
	d.notify(ctx, NewNotification(notificationKindFor(change.Kind), change.Email, change.Token, d.frontendURL()))
}

func (d Dependencies) authResponse(identity *Identity) (*AuthResponse, error) {
	token, err := d.Tokens.Issue(identity)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Email:     identity.Email,
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		Provider:  identity.Provider,
		Token:     token,
	}, nil
}

func newStagingToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", ErrUnavailable(err, "failed to generate token")
	}
	return id.String(), nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}
