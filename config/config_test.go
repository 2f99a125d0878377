package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"ACCOUNTS_SIGNING_KEY": testKey,
	})
	require.NoError(t, err)

	assert.Equal(t, testKey, cfg.GetSigningKey())
	assert.Equal(t, 24*time.Hour, cfg.GetTokenExpiration())
	assert.Equal(t, 24*time.Hour, cfg.GetRegistrationWindow())
	assert.Equal(t, 30*time.Minute, cfg.GetPasswordResetWindow())
	assert.Equal(t, "go-accounts", cfg.GetIssuer())
	assert.Equal(t, "http://localhost:3000", cfg.GetFrontendURL())
	assert.False(t, cfg.GetStrictOAuthProvider())
	assert.Equal(t, StagingSQL, cfg.StagingBackend)
	assert.Equal(t, "0 * * * *", cfg.ReaperSchedule)
	assert.Equal(t, 587, cfg.SMTPPort)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"ACCOUNTS_SIGNING_KEY":           testKey,
		"ACCOUNTS_TOKEN_EXPIRATION":      "2h",
		"ACCOUNTS_PASSWORD_RESET_WINDOW": "15m",
		"ACCOUNTS_STRICT_OAUTH_PROVIDER": "true",
		"ACCOUNTS_STAGING_BACKEND":       "redis",
		"ACCOUNTS_REDIS_ADDR":            "cache:6379",
		"ACCOUNTS_FRONTEND_URL":          "https://app.example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.GetTokenExpiration())
	assert.Equal(t, 15*time.Minute, cfg.GetPasswordResetWindow())
	assert.True(t, cfg.GetStrictOAuthProvider())
	assert.Equal(t, StagingRedis, cfg.StagingBackend)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, "https://app.example.com", cfg.GetFrontendURL())
}

func TestLoadFrom_MissingSigningKey(t *testing.T) {
	_, err := LoadFrom(map[string]string{})
	assert.Error(t, err)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
	}{
		{
			name:    "short signing key",
			environ: map[string]string{"ACCOUNTS_SIGNING_KEY": "short"},
		},
		{
			name: "unknown staging backend",
			environ: map[string]string{
				"ACCOUNTS_SIGNING_KEY":     testKey,
				"ACCOUNTS_STAGING_BACKEND": "memcached",
			},
		},
		{
			name: "smtp sender is not an email",
			environ: map[string]string{
				"ACCOUNTS_SIGNING_KEY": testKey,
				"ACCOUNTS_SMTP_HOST":   "smtp.example.com",
				"ACCOUNTS_SMTP_FROM":   "nobody",
			},
		},
		{
			name: "bad duration",
			environ: map[string]string{
				"ACCOUNTS_SIGNING_KEY":      testKey,
				"ACCOUNTS_TOKEN_EXPIRATION": "tomorrow",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.environ)
			assert.Error(t, err)
		})
	}
}
