package accounts_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginLocal_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "a@x.com", "Secret123")

	env.users["g-token"] = &oauth.Claims{Email: "g@x.com"}
	_, err := env.service.LoginOAuth(ctx, accounts.ProviderGoogle, "g-token")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		kind     accounts.ErrorKind
		message  string
	}{
		{
			name:     "unknown email",
			email:    "nobody@x.com",
			password: "Secret123",
			kind:     accounts.KindNotFound,
			message:  "User not found",
		},
		{
			name:     "wrong password",
			email:    "a@x.com",
			password: "nope",
			kind:     accounts.KindInvalidCredentials,
			message:  "Invalid credentials",
		},
		{
			name:     "oauth identity",
			email:    "g@x.com",
			password: "Secret123",
			kind:     accounts.KindWrongProvider,
			message:  "This account uses google login",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := env.service.LoginLocal(ctx, tt.email, tt.password)
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Equal(t, tt.kind, accounts.KindOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoginOAuth_CreatesIdentityOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.users["g-token"] = &oauth.Claims{Email: "g@x.com", GivenName: "Grace", FamilyName: "Hopper"}

	first, err := env.service.LoginOAuth(ctx, accounts.ProviderGoogle, "g-token")
	require.NoError(t, err)
	assert.Equal(t, "g@x.com", first.Email)
	assert.Equal(t, "Grace", first.FirstName)
	assert.Equal(t, "Hopper", first.LastName)
	assert.Equal(t, accounts.ProviderGoogle, first.Provider)

	second, err := env.service.LoginOAuth(ctx, accounts.ProviderGoogle, "g-token")
	require.NoError(t, err)
	assert.Equal(t, first.Email, second.Email)

	assert.Equal(t, 1, env.countIdentities(t, "g@x.com"))

	claims, err := env.service.Tokens().Validate(second.Token)
	require.NoError(t, err)
	assert.Equal(t, accounts.ProviderGoogle, claims.Provider)
}

func TestLoginOAuth_ConcurrentFirstLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.users["g-token"] = &oauth.Claims{Email: "g@x.com"}

	const callers = 4
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.service.LoginOAuth(ctx, accounts.ProviderGoogle, "g-token")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, env.countIdentities(t, "g@x.com"))
}

func TestLoginOAuth_VerificationErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.registry.Register(oauth.VerifierFunc("outlook",
		func(context.Context, string) (*oauth.Claims, error) {
			return nil, oauth.Unavailable("outlook", 503, errors.New("graph is down"))
		},
	)))

	_, err := env.service.LoginOAuth(ctx, accounts.ProviderGoogle, "bad-token")
	assert.True(t, accounts.IsKind(err, accounts.KindInvalidCredentials))

	_, err = env.service.LoginOAuth(ctx, accounts.ProviderOutlook, "any")
	assert.True(t, accounts.IsKind(err, accounts.KindUnavailable))

	_, err = env.service.LoginOAuth(ctx, accounts.Provider("github"), "any")
	assert.True(t, accounts.IsKind(err, accounts.KindUnsupportedProvider))

	_, err = env.service.LoginOAuth(ctx, accounts.ProviderLocal, "any")
	assert.True(t, accounts.IsKind(err, accounts.KindUnsupportedProvider))
}

func TestLoginOAuth_ExistingLocalIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "a@x.com", "Secret123")

	env.users["g-token"] = &oauth.Claims{Email: "a@x.com"}

	resp, err := env.service.LoginOAuth(ctx, accounts.ProviderGoogle, "g-token")
	require.NoError(t, err)
	assert.Equal(t, accounts.ProviderLocal, resp.Provider, "logs in as the existing identity")
	assert.Equal(t, 1, env.countIdentities(t, "a@x.com"))
}

func TestLoginOAuth_StrictProvider(t *testing.T) {
	env := newTestEnv(t, withStrictOAuth())
	ctx := context.Background()
	env.register(t, "a@x.com", "Secret123")

	env.users["g-token"] = &oauth.Claims{Email: "a@x.com"}

	_, err := env.service.LoginOAuth(ctx, accounts.ProviderGoogle, "g-token")
	require.Error(t, err)
	assert.True(t, accounts.IsKind(err, accounts.KindWrongProvider))
	assert.Contains(t, err.Error(), "This account uses local login")
}

func TestLoginOAuth_NoVerifiers(t *testing.T) {
	svc := accounts.NewService(accounts.Dependencies{
		Repo:   accounts.NewRepositoryManager(newTestDB(t)),
		Config: testConfig{},
		Logger: nopLogger{},
	})

	_, err := svc.LoginOAuth(context.Background(), accounts.ProviderGoogle, "g-token")
	assert.True(t, accounts.IsKind(err, accounts.KindUnsupportedProvider))
}
