// Package oauth verifies credentials issued by external identity providers and
// normalizes them into Claims.
package oauth

import "context"

// Claims is the normalized identity asserted by a provider
type Claims struct {
	Email      string
	GivenName  string
	FamilyName string
	Raw        map[string]any
}

// Verifier validates a provider credential and returns the claims it carries.
// Implementations must fail with a verification error when the credential is
// rejected, and with an unavailable error when the provider cannot be reached.
type Verifier interface {
	Name() string
	Verify(ctx context.Context, credential string) (*Claims, error)
}

// VerifierFunc adapts a function to Verifier under name
func VerifierFunc(name string, fn func(ctx context.Context, credential string) (*Claims, error)) Verifier {
	return funcVerifier{name: name, fn: fn}
}

type funcVerifier struct {
	name string
	fn   func(ctx context.Context, credential string) (*Claims, error)
}

func (f funcVerifier) Name() string { return f.name }

func (f funcVerifier) Verify(ctx context.Context, credential string) (*Claims, error) {
	return f.fn(ctx, credential)
}
