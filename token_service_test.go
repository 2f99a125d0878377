package accounts_test

import (
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenService(clock *fakeClock, issuer string) *accounts.TokenService {
	return accounts.NewTokenService(testConfig{issuer: issuer}, nopLogger{}).WithClock(clock.Now)
}

func TestTokenService_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	ts := newTokenService(clock, "go-accounts")

	token, err := ts.Issue(&accounts.Identity{Email: "a@x.com", Provider: accounts.ProviderOutlook})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "a@x.com", claims.Subject())
	assert.Equal(t, accounts.ProviderOutlook, claims.Provider)
	assert.Equal(t, "go-accounts", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.Issued().Equal(clock.Now()))
	assert.True(t, claims.Expires().Equal(clock.Now().Add(time.Hour)))

	parsed, _, err := jwt.NewParser().ParseUnverified(token, &accounts.SessionClaims{})
	require.NoError(t, err)
	assert.Equal(t, "HS384", parsed.Method.Alg())
}

func TestTokenService_UniqueTokens(t *testing.T) {
	ts := newTokenService(newFakeClock(), "")
	identity := &accounts.Identity{Email: "a@x.com", Provider: accounts.ProviderLocal}

	first, err := ts.Issue(identity)
	require.NoError(t, err)
	second, err := ts.Issue(identity)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestTokenService_Expired(t *testing.T) {
	clock := newFakeClock()
	ts := newTokenService(clock, "")

	token, err := ts.Issue(&accounts.Identity{Email: "a@x.com", Provider: accounts.ProviderLocal})
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Second)

	_, err = ts.Validate(token)
	require.Error(t, err)
	assert.True(t, accounts.IsKind(err, accounts.KindInvalidToken))
	assert.Contains(t, err.Error(), "session token expired")
}

func TestTokenService_Rejects(t *testing.T) {
	clock := newFakeClock()
	ts := newTokenService(clock, "go-accounts")

	sign := func(method jwt.SigningMethod, key []byte, claims *accounts.SessionClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}

	claimsFor := func(email, issuer string) *accounts.SessionClaims {
		now := clock.Now()
		return &accounts.SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				Subject:   email,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
			Email:    email,
			Provider: accounts.ProviderLocal,
		}
	}

	key := []byte(testSigningKey)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "garbage",
			token: "not-a-token",
		},
		{
			name:  "empty",
			token: "",
		},
		{
			name:  "wrong key",
			token: sign(jwt.SigningMethodHS384, []byte("another-signing-key-0123456789abcd"), claimsFor("a@x.com", "go-accounts")),
		},
		{
			name:  "unexpected algorithm",
			token: sign(jwt.SigningMethodHS256, key, claimsFor("a@x.com", "go-accounts")),
		},
		{
			name:  "issuer mismatch",
			token: sign(jwt.SigningMethodHS384, key, claimsFor("a@x.com", "someone-else")),
		},
		{
			name:  "missing email",
			token: sign(jwt.SigningMethodHS384, key, claimsFor("", "go-accounts")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ts.Validate(tt.token)
			require.Error(t, err)
			assert.Nil(t, claims)
			assert.True(t, accounts.IsKind(err, accounts.KindInvalidToken))
		})
	}
}

func TestTokenService_IssueNilIdentity(t *testing.T) {
	ts := newTokenService(newFakeClock(), "")
	_, err := ts.Issue(nil)
	assert.Error(t, err)
}
