package accounts

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

type LocalLoginMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email"`
	Password   string `json:"password" example:"some_secret_word" doc:"Password"`
	OnResponse func(resp *AuthResponse)
}

func (e LocalLoginMessage) Type() string { return "account.login.local" }

// LocalLoginHandler authenticates an identity with its password
type LocalLoginHandler struct {
	deps Dependencies
}

func NewLocalLoginHandler(deps Dependencies) *LocalLoginHandler {
	return &LocalLoginHandler{deps: deps.withDefaults()}
}

func (h *LocalLoginHandler) WithLogger(logger Logger) *LocalLoginHandler {
	if logger != nil {
		h.deps.Logger = logger
	}
	return h
}

func (h *LocalLoginHandler) Execute(ctx context.Context, event LocalLoginMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during login",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *LocalLoginHandler) execute(ctx context.Context, event LocalLoginMessage) error {
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	email := normalizeEmail(event.Email)

	identity, err := h.deps.Repo.Identities().GetByEmail(ctx, email)
	if err != nil {
		if IsKind(err, KindNotFound) {
			return ErrNotFound("User not found")
		}
		return asRichError(err, "login failed")
	}

	if !identity.IsLocal() {
		return ErrWrongProvider(identity.Provider)
	}

	if err := h.deps.Hasher.ComparePasswordAndHash(event.Password, identity.PasswordHash); err != nil {
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			h.deps.Logger.Warn("password comparison failed", "email", email, "error", err)
		}
		return ErrInvalidCredentials("Invalid credentials")
	}

	resp, err := h.deps.authResponse(identity)
	if err != nil {
		return asRichError(err, "login failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
