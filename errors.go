package accounts

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind classifies the failures surfaced by the workflows
type ErrorKind string

const (
	KindUnknown             ErrorKind = "unknown"
	KindConflict            ErrorKind = "conflict"
	KindNotFound            ErrorKind = "not_found"
	KindExpired             ErrorKind = "expired"
	KindInvalidCredentials  ErrorKind = "invalid_credentials"
	KindWrongProvider       ErrorKind = "wrong_provider"
	KindUnsupportedProvider ErrorKind = "unsupported_provider"
	KindSamePassword        ErrorKind = "same_password"
	KindUnavailable         ErrorKind = "unavailable"
	KindInvalidToken        ErrorKind = "invalid_token"
)

const (
	TextCodeConflict            = "ALREADY_EXISTS"
	TextCodeNotFound            = "NOT_FOUND"
	TextCodeExpired             = goerrors.TextCodeVerificationExpired
	TextCodeInvalidCredentials  = goerrors.TextCodeInvalidCredentials
	TextCodeWrongProvider       = "WRONG_PROVIDER"
	TextCodeUnsupportedProvider = "UNSUPPORTED_PROVIDER"
	TextCodeSamePassword        = "SAME_PASSWORD"
	TextCodeUnavailable         = "SERVICE_UNAVAILABLE"
	TextCodeTokenExpired        = goerrors.TextCodeTokenExpired
	TextCodeTokenMalformed      = goerrors.TextCodeTokenMalformed
)

var kindByTextCode = map[string]ErrorKind{
	TextCodeConflict:            KindConflict,
	TextCodeNotFound:            KindNotFound,
	TextCodeExpired:             KindExpired,
	TextCodeInvalidCredentials:  KindInvalidCredentials,
	TextCodeWrongProvider:       KindWrongProvider,
	TextCodeUnsupportedProvider: KindUnsupportedProvider,
	TextCodeSamePassword:        KindSamePassword,
	TextCodeUnavailable:         KindUnavailable,
	TextCodeTokenExpired:        KindInvalidToken,
	TextCodeTokenMalformed:      KindInvalidToken,
}

// ErrConflict reports an email already owned by an identity or a live pending change
func ErrConflict(msg string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryConflict).
		WithCode(goerrors.CodeConflict).
		WithTextCode(TextCodeConflict)
}

func ErrNotFound(msg string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithTextCode(TextCodeNotFound)
}

// ErrExpired reports a pending change observed past its expiry
func ErrExpired(msg string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryValidation).
		WithCode(http.StatusGone).
		WithTextCode(TextCodeExpired)
}

func ErrInvalidCredentials(msg string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeInvalidCredentials)
}

// ErrWrongProvider reports a login attempt through a provider other than the
// one the identity was created with. The message names the actual provider.
func ErrWrongProvider(actual Provider) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("This account uses %s login", actual), goerrors.CategoryAuth).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeWrongProvider).
		WithMetadata(map[string]any{"provider": actual.String()})
}

func ErrUnsupportedProvider(msg string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryBadInput).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeUnsupportedProvider)
}

func ErrSamePassword(msg string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeSamePassword)
}

// ErrUnavailable wraps a storage, transport or timeout failure
func ErrUnavailable(err error, msg string) *goerrors.Error {
	if err == nil {
		return goerrors.New(msg, goerrors.CategoryExternal).
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(TextCodeUnavailable)
	}
	return &goerrors.Error{
		Category: goerrors.CategoryExternal,
		Code:     http.StatusServiceUnavailable,
		TextCode: TextCodeUnavailable,
		Message:  msg,
		Source:   err,
	}
}

// ErrInvalidToken reports a session token that failed validation
func ErrInvalidToken(err error, expired bool) *goerrors.Error {
	code := TextCodeTokenMalformed
	msg := "invalid session token"
	if expired {
		code = TextCodeTokenExpired
		msg = "session token expired"
	}
	e := goerrors.New(msg, goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(code)
	e.Source = err
	return e
}

// KindOf classifies err. Errors that do not carry one of the package text
// codes are reported as KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return KindUnknown
	}

	if kind, ok := kindByTextCode[richErr.TextCode]; ok {
		return kind
	}

	if richErr.Source != nil {
		return KindOf(richErr.Source)
	}

	return KindUnknown
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// asRichError returns the rich error carried by err, otherwise it wraps err
// as unavailable.
func asRichError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return ErrUnavailable(err, msg)
}
