package accounts

import (
	"context"

	"github.com/goliatone/go-accounts/oauth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type OAuthLoginMessage struct {
	Provider   Provider `json:"provider" example:"google" doc:"OAuth provider"`
	Credential string   `json:"credential" doc:"ID token or access token issued by the provider"`
	OnResponse func(resp *AuthResponse)
}

func (e OAuthLoginMessage) Type() string { return "account.login.oauth" }

// OAuthLoginHandler logs in through an external provider, creating the
// identity on first sight of the verified email.
//
// An identity created through another provider is logged in as is unless the
// configuration asks for strict provider matching.
type OAuthLoginHandler struct {
	deps Dependencies
}

func NewOAuthLoginHandler(deps Dependencies) *OAuthLoginHandler {
	return &OAuthLoginHandler{deps: deps.withDefaults()}
}

func (h *OAuthLoginHandler) WithLogger(logger Logger) *OAuthLoginHandler {
	if logger != nil {
		h.deps.Logger = logger
	}
	return h
}

func (h *OAuthLoginHandler) Execute(ctx context.Context, event OAuthLoginMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during oauth login",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *OAuthLoginHandler) execute(ctx context.Context, event OAuthLoginMessage) error {
	if h.deps.Verifiers == nil || event.Provider == ProviderLocal {
		return ErrUnsupportedProvider("unsupported login provider").
			WithMetadata(map[string]any{"provider": event.Provider.String()})
	}

	// verification runs before any transaction is opened
	claims, err := h.deps.Verifiers.Verify(ctx, event.Provider.String(), event.Credential)
	if err != nil {
		return h.classify(event.Provider, err)
	}

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	email := normalizeEmail(claims.Email)

	var identity *Identity
	err = h.deps.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		identities := h.deps.Repo.Identities()

		existing, err := identities.GetByEmailTx(ctx, tx, email)
		if err == nil {
			identity = existing
			return nil
		}
		if !IsKind(err, KindNotFound) {
			return err
		}

		identity, err = identities.CreateTx(ctx, tx, &Identity{
			Email:     email,
			FirstName: claims.GivenName,
			LastName:  claims.FamilyName,
			Provider:  event.Provider,
		})
		return err
	})

	// a concurrent first login created the identity
	if IsKind(err, KindConflict) {
		identity, err = h.deps.Repo.Identities().GetByEmail(ctx, email)
	}

	if err != nil {
		return asRichError(err, "oauth login failed")
	}

	if identity.Provider != event.Provider {
		if h.deps.Config != nil && h.deps.Config.GetStrictOAuthProvider() {
			return ErrWrongProvider(identity.Provider)
		}
		h.deps.Logger.Warn("oauth login for identity of another provider",
			"email", email, "provider", event.Provider, "identity_provider", identity.Provider)
	}

	resp, err := h.deps.authResponse(identity)
	if err != nil {
		return asRichError(err, "oauth login failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *OAuthLoginHandler) classify(provider Provider, err error) error {
	meta := map[string]any{"provider": provider.String()}

	switch {
	case oauth.IsUnsupported(err):
		return ErrUnsupportedProvider("unsupported login provider").WithMetadata(meta)
	case oauth.IsVerificationFailed(err):
		h.deps.Logger.Warn("oauth credential rejected", "provider", provider, "error", err)
		e := ErrInvalidCredentials("OAuth login failed").WithMetadata(meta)
		e.Source = err
		return e
	default:
		h.deps.Logger.Error("oauth provider unavailable", "provider", provider, "error", err)
		return ErrUnavailable(err, "OAuth provider unavailable").WithMetadata(meta)
	}
}
