package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const MessageVerificationSent = "Verification email sent"

type InitiateRegistrationMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email"`
	FirstName  string `json:"firstName" example:"Pepe" doc:"First name"`
	LastName   string `json:"lastName" example:"Rone" doc:"Last name"`
	Password   string `json:"password" example:"some_secret_word" doc:"Password"`
	OnResponse func(resp *InitiateRegistrationResponse)
}

func (e InitiateRegistrationMessage) Type() string { return "account.registration.initiate" }

type InitiateRegistrationResponse struct {
	Message string
}

// InitiateRegistrationHandler stages a registration and mails its token
type InitiateRegistrationHandler struct {
	deps Dependencies
}

func NewInitiateRegistrationHandler(deps Dependencies) *InitiateRegistrationHandler {
	return &InitiateRegistrationHandler{deps: deps.withDefaults()}
}

// WithLogger overrides the logger used by the handler.
func (h *InitiateRegistrationHandler) WithLogger(logger Logger) *InitiateRegistrationHandler {
	if logger != nil {
		h.deps.Logger = logger
	}
	return h
}

func (h *InitiateRegistrationHandler) Execute(ctx context.Context, event InitiateRegistrationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitiateRegistrationHandler) execute(ctx context.Context, event InitiateRegistrationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	email := normalizeEmail(event.Email)

	hash, err := h.deps.Hasher.HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	token, err := newStagingToken()
	if err != nil {
		return err
	}

	now := h.deps.Now()
	change := NewRegistration(token, email, RegistrationPayload{
		FirstName:    event.FirstName,
		LastName:     event.LastName,
		PasswordHash: hash,
	}, now, h.deps.registrationWindow())

	err = h.deps.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := h.deps.Repo.Identities().GetByEmailTx(ctx, tx, email)
		if err == nil {
			return ErrConflict("Email already registered")
		}
		if !IsKind(err, KindNotFound) {
			return err
		}

		if err := h.deps.Repo.PendingChanges().InsertIfAbsentTx(ctx, tx, change, now); err != nil {
			if IsKind(err, KindConflict) {
				return ErrConflict("A registration request is already pending for this email")
			}
			return err
		}

		return nil
	})

	if err != nil {
		return asRichError(err, "registration failed")
	}

	h.deps.Logger.Info("registration staged", "email", email, "expires_at", change.ExpiresAt)
	h.deps.notifyChange(ctx, change)

	if event.OnResponse != nil {
		event.OnResponse(&InitiateRegistrationResponse{Message: MessageVerificationSent})
	}

	return nil
}
