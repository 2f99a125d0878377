package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const MessageResetLinkSent = "Password reset link sent to your email"

type ForgotPasswordMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email"`
	OnResponse func(resp *ForgotPasswordResponse)
}

func (e ForgotPasswordMessage) Type() string { return "account.password.forgot" }

type ForgotPasswordResponse struct {
	Message string
}

// ForgotPasswordHandler stages a password reset for a local identity
type ForgotPasswordHandler struct {
	deps Dependencies
}

func NewForgotPasswordHandler(deps Dependencies) *ForgotPasswordHandler {
	return &ForgotPasswordHandler{deps: deps.withDefaults()}
}

func (h *ForgotPasswordHandler) WithLogger(logger Logger) *ForgotPasswordHandler {
	if logger != nil {
		h.deps.Logger = logger
	}
	return h
}

func (h *ForgotPasswordHandler) Execute(ctx context.Context, event ForgotPasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ForgotPasswordHandler) execute(ctx context.Context, event ForgotPasswordMessage) error {
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	email := normalizeEmail(event.Email)

	token, err := newStagingToken()
	if err != nil {
		return err
	}

	now := h.deps.Now()

	var change *PendingChange
	err = h.deps.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		identity, err := h.deps.Repo.Identities().GetByEmailTx(ctx, tx, email)
		if err != nil {
			if IsKind(err, KindNotFound) {
				return ErrNotFound("Email not registered")
			}
			return err
		}

		if !identity.IsLocal() {
			return ErrUnsupportedProvider("Cannot reset password for OAuth accounts").
				WithMetadata(map[string]any{"provider": identity.Provider.String()})
		}

		change = NewPasswordReset(token, email, PasswordResetPayload{
			IdentityID:   identity.ID,
			PasswordHash: identity.PasswordHash,
		}, now, h.deps.passwordResetWindow())

		if err := h.deps.Repo.PendingChanges().InsertIfAbsentTx(ctx, tx, change, now); err != nil {
			if IsKind(err, KindConflict) {
				return ErrConflict("A password reset request is already pending. Please check your email.")
			}
			return err
		}

		return nil
	})

	if err != nil {
		return asRichError(err, "password reset request failed")
	}

	h.deps.Logger.Info("password reset staged", "email", email)
	h.deps.notifyChange(ctx, change)

	if event.OnResponse != nil {
		event.OnResponse(&ForgotPasswordResponse{Message: MessageResetLinkSent})
	}

	return nil
}
