package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const MessageEmailVerified = "Email verified! Redirecting to login..."

const msgInvalidRegistrationToken = "Invalid or Expired token. Try registering again."

type CompleteRegistrationMessage struct {
	Token      string `json:"token" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"Verification token"`
	OnResponse func(resp *CompleteRegistrationResponse)
}

func (e CompleteRegistrationMessage) Type() string { return "account.registration.complete" }

type CompleteRegistrationResponse struct {
	Message  string
	Kind     ChangeKind
	Identity *Identity
}

// CompleteRegistrationHandler promotes a registration or an email change
// staged under a token. The token is consumed in the same transaction that
// writes the identity.
type CompleteRegistrationHandler struct {
	deps Dependencies
}

func NewCompleteRegistrationHandler(deps Dependencies) *CompleteRegistrationHandler {
	return &CompleteRegistrationHandler{deps: deps.withDefaults()}
}

func (h *CompleteRegistrationHandler) WithLogger(logger Logger) *CompleteRegistrationHandler {
	if logger != nil {
		h.deps.Logger = logger
	}
	return h
}

func (h *CompleteRegistrationHandler) Execute(ctx context.Context, event CompleteRegistrationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during registration completion",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CompleteRegistrationHandler) execute(ctx context.Context, event CompleteRegistrationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	var (
		expired  bool
		kind     ChangeKind
		identity *Identity
	)

	now := h.deps.Now()

	err := h.deps.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		change, err := h.deps.Repo.PendingChanges().ConsumeTx(ctx, tx, event.Token, ChangeRegistration, ChangeEmail)
		if err != nil {
			if IsKind(err, KindNotFound) {
				return ErrNotFound(msgInvalidRegistrationToken)
			}
			return err
		}

		kind = change.Kind

		// commit the delete, the caller gets Expired after the transaction
		if change.Expired(now) {
			expired = true
			return nil
		}

		identity, err = h.promote(ctx, tx, change)
		return err
	})

	if err != nil {
		return asRichError(err, "registration completion failed")
	}

	if expired {
		return ErrExpired(msgInvalidRegistrationToken)
	}

	h.deps.Logger.Info("pending change completed", "kind", kind, "email", identity.Email)

	if event.OnResponse != nil {
		event.OnResponse(&CompleteRegistrationResponse{
			Message:  MessageEmailVerified,
			Kind:     kind,
			Identity: identity,
		})
	}

	return nil
}

func (h *CompleteRegistrationHandler) promote(ctx context.Context, tx bun.IDB, change *PendingChange) (*Identity, error) {
	identities := h.deps.Repo.Identities()

	if p, ok := change.Registration(); ok {
		identity, err := identities.CreateTx(ctx, tx, &Identity{
			Email:        change.Email,
			FirstName:    p.FirstName,
			LastName:     p.LastName,
			PasswordHash: p.PasswordHash,
			Provider:     ProviderLocal,
		})
		if err != nil {
			if IsKind(err, KindConflict) {
				return nil, ErrConflict("Email already registered")
			}
			return nil, err
		}
		return identity, nil
	}

	if p, ok := change.EmailChange(); ok {
		identity, err := identities.GetByIDTx(ctx, tx, p.IdentityID)
		if err != nil {
			return nil, err
		}

		identity.Email = change.Email
		identity.FirstName = p.FirstName
		identity.LastName = p.LastName

		if err := identities.UpdateProfileTx(ctx, tx, identity); err != nil {
			if IsKind(err, KindConflict) {
				return nil, ErrConflict("Email already registered")
			}
			return nil, err
		}
		return identity, nil
	}

	return nil, ErrNotFound(msgInvalidRegistrationToken)
}
