package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// Service exposes the account workflows as plain method calls
type Service struct {
	deps Dependencies

	initiate *InitiateRegistrationHandler
	complete *CompleteRegistrationHandler
	local    *LocalLoginHandler
	oauth    *OAuthLoginHandler
	forgot   *ForgotPasswordHandler
	reset    *ResetPasswordHandler
	change   *ChangePasswordHandler
	profile  *UpdateProfileHandler
}

// NewService wires every workflow handler over deps. Repo is required, and so
// is either Config or a prebuilt Tokens service. NewService panics otherwise.
func NewService(deps Dependencies) *Service {
	if deps.Repo == nil {
		panic("ACCOUNTS: service configuration: Repo is required.")
	}
	if deps.Config == nil && deps.Tokens == nil {
		panic("ACCOUNTS: service configuration: Config or Tokens is required.")
	}

	deps = deps.withDefaults()
	return &Service{
		deps:     deps,
		initiate: NewInitiateRegistrationHandler(deps),
		complete: NewCompleteRegistrationHandler(deps),
		local:    NewLocalLoginHandler(deps),
		oauth:    NewOAuthLoginHandler(deps),
		forgot:   NewForgotPasswordHandler(deps),
		reset:    NewResetPasswordHandler(deps),
		change:   NewChangePasswordHandler(deps),
		profile:  NewUpdateProfileHandler(deps),
	}
}

// Tokens returns the token service used to mint session tokens
func (s *Service) Tokens() *TokenService {
	return s.deps.Tokens
}

func (s *Service) InitiateRegistration(ctx context.Context, email, firstName, lastName, password string) (string, error) {
	var message string
	err := s.initiate.Execute(ctx, InitiateRegistrationMessage{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Password:  password,
		OnResponse: func(resp *InitiateRegistrationResponse) {
			message = resp.Message
		},
	})
	return message, err
}

// CompleteRegistration consumes token and promotes the registration or email
// change it was issued for.
func (s *Service) CompleteRegistration(ctx context.Context, token string) (string, error) {
	var message string
	err := s.complete.Execute(ctx, CompleteRegistrationMessage{
		Token: token,
		OnResponse: func(resp *CompleteRegistrationResponse) {
			message = resp.Message
		},
	})
	return message, err
}

func (s *Service) LoginLocal(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out *AuthResponse
	err := s.local.Execute(ctx, LocalLoginMessage{
		Email:    email,
		Password: password,
		OnResponse: func(resp *AuthResponse) {
			out = resp
		},
	})
	return out, err
}

func (s *Service) LoginOAuth(ctx context.Context, provider Provider, credential string) (*AuthResponse, error) {
	var out *AuthResponse
	err := s.oauth.Execute(ctx, OAuthLoginMessage{
		Provider:   provider,
		Credential: credential,
		OnResponse: func(resp *AuthResponse) {
			out = resp
		},
	})
	return out, err
}

func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	var message string
	err := s.forgot.Execute(ctx, ForgotPasswordMessage{
		Email: email,
		OnResponse: func(resp *ForgotPasswordResponse) {
			message = resp.Message
		},
	})
	return message, err
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	var message string
	err := s.reset.Execute(ctx, ResetPasswordMessage{
		Token:       token,
		NewPassword: newPassword,
		OnResponse: func(resp *ResetPasswordResponse) {
			message = resp.Message
		},
	})
	return message, err
}

func (s *Service) ChangePassword(ctx context.Context, email, oldPassword, newPassword string) error {
	return s.change.Execute(ctx, ChangePasswordMessage{
		Email:       email,
		OldPassword: oldPassword,
		NewPassword: newPassword,
	})
}

// UpdateProfile renames the identity, or stages an email change when
// fields.NewEmail differs from email.
func (s *Service) UpdateProfile(ctx context.Context, email string, fields ProfileFields) (*ProfileResult, error) {
	var out *ProfileResult
	err := s.profile.Execute(ctx, UpdateProfileMessage{
		Email:  email,
		Fields: fields,
		OnResponse: func(resp *ProfileResult) {
			out = resp
		},
	})
	return out, err
}

// UpdateEmail stages moving the identity at oldEmail to newEmail
func (s *Service) UpdateEmail(ctx context.Context, oldEmail, newEmail string, fields ProfileFields) (string, error) {
	newEmail = normalizeEmail(newEmail)
	if newEmail == "" {
		return "", goerrors.New("new email is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	if newEmail == normalizeEmail(oldEmail) {
		return "", ErrConflict(msgEmailChangeConflict)
	}

	fields.NewEmail = newEmail
	res, err := s.UpdateProfile(ctx, oldEmail, fields)
	if err != nil {
		return "", err
	}
	return res.Message, nil
}
