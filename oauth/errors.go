package oauth

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeVerificationFailed  = "OAUTH_VERIFICATION_FAILED"
	TextCodeProviderUnavailable = "OAUTH_PROVIDER_UNAVAILABLE"
	TextCodeUnsupportedProvider = "OAUTH_UNSUPPORTED_PROVIDER"
)

var (
	// ErrVerificationFailed is returned when a provider rejects a credential
	ErrVerificationFailed = goerrors.New("oauth credential verification failed", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode(TextCodeVerificationFailed)

	// ErrProviderUnavailable is returned on transport failures and timeouts
	ErrProviderUnavailable = goerrors.New("oauth provider unavailable", goerrors.CategoryExternal).
				WithCode(http.StatusServiceUnavailable).
				WithTextCode(TextCodeProviderUnavailable)

	ErrUnsupportedProvider = goerrors.New("unsupported oauth provider", goerrors.CategoryBadInput).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode(TextCodeUnsupportedProvider)
)

// ProviderError captures the provider response behind a failed verification
type ProviderError struct {
	Provider    string
	Status      int
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	scope := "provider"
	if e.Provider != "" {
		scope = e.Provider
	}

	switch {
	case e.Description != "":
		return fmt.Sprintf("%s verify failed: %s", scope, e.Description)
	case e.Err != nil:
		return fmt.Sprintf("%s verify failed: %v", scope, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s verify failed: status %d", scope, e.Status)
	}
	return fmt.Sprintf("%s verify failed", scope)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ProviderError) metadata() map[string]any {
	meta := map[string]any{}
	if e.Provider != "" {
		meta["provider"] = e.Provider
	}
	if e.Status != 0 {
		meta["status"] = e.Status
	}
	if e.Description != "" {
		meta["description"] = e.Description
	}
	return meta
}

// VerificationFailed returns ErrVerificationFailed annotated with the provider response
func VerificationFailed(provider string, status int, description string, err error) error {
	return wrap(ErrVerificationFailed, &ProviderError{
		Provider:    provider,
		Status:      status,
		Description: description,
		Err:         err,
	})
}

// Unavailable returns ErrProviderUnavailable annotated with the transport failure
func Unavailable(provider string, status int, err error) error {
	return wrap(ErrProviderUnavailable, &ProviderError{
		Provider: provider,
		Status:   status,
		Err:      err,
	})
}

func wrap(base *goerrors.Error, perr *ProviderError) error {
	clone := base.Clone()
	clone.Source = perr
	clone.WithMetadata(perr.metadata())
	return clone
}

// IsVerificationFailed reports whether err carries ErrVerificationFailed
func IsVerificationFailed(err error) bool {
	return hasTextCode(err, TextCodeVerificationFailed)
}

// IsUnavailable reports whether err carries ErrProviderUnavailable
func IsUnavailable(err error) bool {
	return hasTextCode(err, TextCodeProviderUnavailable)
}

// IsUnsupported reports whether err carries ErrUnsupportedProvider
func IsUnsupported(err error) bool {
	return hasTextCode(err, TextCodeUnsupportedProvider)
}

func hasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}
