package oauth

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry maps provider names to verifiers
type Registry struct {
	mu        sync.RWMutex
	verifiers map[string]Verifier
}

// NewRegistry returns a registry holding verifiers
func NewRegistry(verifiers ...Verifier) (*Registry, error) {
	r := &Registry{verifiers: map[string]Verifier{}}
	for _, v := range verifiers {
		if err := r.Register(v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds v under its name. Names are unique.
func (r *Registry) Register(v Verifier) error {
	if v == nil {
		return fmt.Errorf("oauth: nil verifier")
	}

	name := v.Name()
	if name == "" {
		return fmt.Errorf("oauth: verifier name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.verifiers[name]; ok {
		return fmt.Errorf("oauth: verifier %q already registered", name)
	}
	r.verifiers[name] = v
	return nil
}

func (r *Registry) Get(name string) (Verifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[name]
	return v, ok
}

// Names lists the registered providers in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Verify dispatches credential to the verifier registered for provider
func (r *Registry) Verify(ctx context.Context, provider, credential string) (*Claims, error) {
	v, ok := r.Get(provider)
	if !ok {
		clone := ErrUnsupportedProvider.Clone()
		clone.WithMetadata(map[string]any{"provider": provider})
		return nil, clone
	}

	claims, err := v.Verify(ctx, credential)
	if err != nil {
		return nil, err
	}

	if claims == nil || claims.Email == "" {
		return nil, VerificationFailed(provider, 0, "no email in verified claims", nil)
	}

	return claims, nil
}
