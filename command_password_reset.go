package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const MessagePasswordReset = "Password reset successfully"

const msgInvalidResetToken = "Invalid or Expired token. Try resetting your password again."

type ResetPasswordMessage struct {
	Token       string `json:"token" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"Reset password token"`
	NewPassword string `json:"newPassword" example:"some_secret_word" doc:"New password"`
	OnResponse  func(resp *ResetPasswordResponse)
}

func (e ResetPasswordMessage) Type() string { return "account.password.reset" }

type ResetPasswordResponse struct {
	Message string
	Email   string
}

// ResetPasswordHandler completes a staged password reset. A new password equal
// to the current one is rejected and leaves the token usable.
type ResetPasswordHandler struct {
	deps Dependencies
}

func NewResetPasswordHandler(deps Dependencies) *ResetPasswordHandler {
	return &ResetPasswordHandler{deps: deps.withDefaults()}
}

func (h *ResetPasswordHandler) WithLogger(logger Logger) *ResetPasswordHandler {
	if logger != nil {
		h.deps.Logger = logger
	}
	return h
}

func (h *ResetPasswordHandler) Execute(ctx context.Context, event ResetPasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResetPasswordHandler) execute(ctx context.Context, event ResetPasswordMessage) error {
	if event.NewPassword == "" {
		return ErrEmptyPassword
	}

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	now := h.deps.Now()

	// a rejected password must not consume the token, so the staged hash is
	// compared before the consuming transaction starts
	staged, err := h.deps.Repo.PendingChanges().GetByToken(ctx, event.Token)
	if err != nil {
		if IsKind(err, KindNotFound) {
			return ErrNotFound(msgInvalidResetToken)
		}
		return asRichError(err, "password reset failed")
	}

	if p, ok := staged.PasswordReset(); ok && !staged.Expired(now) {
		if h.deps.Hasher.ComparePasswordAndHash(event.NewPassword, p.PasswordHash) == nil {
			return ErrSamePassword("New password cannot be the same as the old password")
		}
	}

	hash, err := h.deps.Hasher.HashPassword(event.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	var (
		expired bool
		email   string
	)

	err = h.deps.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		change, err := h.deps.Repo.PendingChanges().ConsumeTx(ctx, tx, event.Token, ChangePasswordReset)
		if err != nil {
			if IsKind(err, KindNotFound) {
				return ErrNotFound(msgInvalidResetToken)
			}
			return err
		}

		if change.Expired(now) {
			expired = true
			return nil
		}

		p, ok := change.PasswordReset()
		if !ok {
			return ErrNotFound(msgInvalidResetToken)
		}

		if err := h.deps.Repo.Identities().UpdatePasswordTx(ctx, tx, p.IdentityID, hash); err != nil {
			return err
		}

		email = change.Email
		return nil
	})

	if err != nil {
		return asRichError(err, "password reset failed")
	}

	if expired {
		return ErrExpired(msgInvalidResetToken)
	}

	h.deps.Logger.Info("password reset completed", "email", email)

	if event.OnResponse != nil {
		event.OnResponse(&ResetPasswordResponse{Message: MessagePasswordReset, Email: email})
	}

	return nil
}
