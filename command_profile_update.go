package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const (
	MessageProfileUpdated   = "Profile updated successfully!"
	MessageEmailChangeSent  = "We've sent a verification link to your new email address. Please verify within 24 hours to complete the update."
	msgEmailChangeConflict  = "Email already registered"
	msgEmailChangeIsPending = "Email already pending for verification. Please check your inbox."
)

type UpdateProfileMessage struct {
	Email      string `json:"-"`
	Fields     ProfileFields
	OnResponse func(resp *ProfileResult)
}

func (e UpdateProfileMessage) Type() string { return "account.profile.update" }

// UpdateProfileHandler renames an identity immediately, or stages an email
// change when a new email is requested.
type UpdateProfileHandler struct {
	deps Dependencies
}

func NewUpdateProfileHandler(deps Dependencies) *UpdateProfileHandler {
	return &UpdateProfileHandler{deps: deps.withDefaults()}
}

func (h *UpdateProfileHandler) WithLogger(logger Logger) *UpdateProfileHandler {
	if logger != nil {
		h.deps.Logger = logger
	}
	return h
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	email := normalizeEmail(event.Email)
	newEmail := normalizeEmail(event.Fields.NewEmail)

	var (
		result *ProfileResult
		err    error
	)

	if newEmail == "" || newEmail == email {
		result, err = h.updateNames(ctx, email, event.Fields)
	} else {
		result, err = h.stageEmailChange(ctx, email, newEmail, event.Fields)
	}

	if err != nil {
		return asRichError(err, "profile update failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(result)
	}

	return nil
}

func (h *UpdateProfileHandler) updateNames(ctx context.Context, email string, fields ProfileFields) (*ProfileResult, error) {
	var identity *Identity

	err := h.deps.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		identity, err = h.deps.Repo.Identities().GetByEmailTx(ctx, tx, email)
		if err != nil {
			if IsKind(err, KindNotFound) {
				return ErrNotFound("User not found with email: " + email)
			}
			return err
		}

		identity.FirstName = fields.FirstName
		identity.LastName = fields.LastName

		return h.deps.Repo.Identities().UpdateProfileTx(ctx, tx, identity)
	})
	if err != nil {
		return nil, err
	}

	resp, err := h.deps.authResponse(identity)
	if err != nil {
		return nil, err
	}

	return &ProfileResult{
		Message:  MessageProfileUpdated,
		Response: resp,
	}, nil
}

func (h *UpdateProfileHandler) stageEmailChange(ctx context.Context, email, newEmail string, fields ProfileFields) (*ProfileResult, error) {
	token, err := newStagingToken()
	if err != nil {
		return nil, err
	}

	now := h.deps.Now()

	var change *PendingChange
	err = h.deps.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		identities := h.deps.Repo.Identities()

		identity, err := identities.GetByEmailTx(ctx, tx, email)
		if err != nil {
			if IsKind(err, KindNotFound) {
				return ErrNotFound("User not found with email: " + email)
			}
			return err
		}

		if _, err := identities.GetByEmailTx(ctx, tx, newEmail); err == nil {
			return ErrConflict(msgEmailChangeConflict)
		} else if !IsKind(err, KindNotFound) {
			return err
		}

		change = NewEmailChange(token, newEmail, EmailChangePayload{
			IdentityID:   identity.ID,
			FirstName:    fields.FirstName,
			LastName:     fields.LastName,
			PasswordHash: identity.PasswordHash,
		}, now, h.deps.registrationWindow())

		if err := h.deps.Repo.PendingChanges().InsertIfAbsentTx(ctx, tx, change, now); err != nil {
			if IsKind(err, KindConflict) {
				return ErrConflict(msgEmailChangeIsPending)
			}
			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("email change staged", "email", email, "new_email", newEmail)
	h.deps.notifyChange(ctx, change)

	return &ProfileResult{Message: MessageEmailChangeSent}, nil
}
