package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const MessagePasswordChanged = "Password changed successfully"

type ChangePasswordMessage struct {
	Email       string `json:"-"`
	OldPassword string `json:"oldPassword" doc:"Current password"`
	NewPassword string `json:"newPassword" doc:"New password"`
	OnResponse  func(resp *ChangePasswordResponse)
}

func (e ChangePasswordMessage) Type() string { return "account.password.change" }

type ChangePasswordResponse struct {
	Message string
}

// ChangePasswordHandler replaces the password of an authenticated local identity
type ChangePasswordHandler struct {
	deps Dependencies
}

func NewChangePasswordHandler(deps Dependencies) *ChangePasswordHandler {
	return &ChangePasswordHandler{deps: deps.withDefaults()}
}

func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	if logger != nil {
		h.deps.Logger = logger
	}
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	email := normalizeEmail(event.Email)

	err := h.deps.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		identity, err := h.deps.Repo.Identities().GetByEmailTx(ctx, tx, email)
		if err != nil {
			if IsKind(err, KindNotFound) {
				return ErrNotFound("User not found with email: " + email)
			}
			return err
		}

		if !identity.IsLocal() {
			return ErrUnsupportedProvider("Cannot change password for OAuth accounts").
				WithMetadata(map[string]any{"provider": identity.Provider.String()})
		}

		if h.deps.Hasher.ComparePasswordAndHash(event.OldPassword, identity.PasswordHash) != nil {
			return ErrInvalidCredentials("Old password is incorrect")
		}

		if h.deps.Hasher.ComparePasswordAndHash(event.NewPassword, identity.PasswordHash) == nil {
			return ErrSamePassword("New password cannot be the same as the old password")
		}

		hash, err := h.deps.Hasher.HashPassword(event.NewPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		return h.deps.Repo.Identities().UpdatePasswordTx(ctx, tx, identity.ID, hash)
	})

	if err != nil {
		return asRichError(err, "password change failed")
	}

	h.deps.Logger.Info("password changed", "email", email)

	if event.OnResponse != nil {
		event.OnResponse(&ChangePasswordResponse{Message: MessagePasswordChanged})
	}

	return nil
}
