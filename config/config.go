// Package config loads the accounts service options from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	accounts "github.com/goliatone/go-accounts"
)

// EnvPrefix is prepended to every variable name
const EnvPrefix = "ACCOUNTS_"

const (
	StagingSQL   = "sql"
	StagingRedis = "redis"
)

// Config holds every option of the service. It satisfies accounts.Config.
type Config struct {
	SigningKey          string        `env:"SIGNING_KEY,required"`
	TokenExpiration     time.Duration `env:"TOKEN_EXPIRATION" envDefault:"24h"`
	Issuer              string        `env:"ISSUER" envDefault:"go-accounts"`
	RegistrationWindow  time.Duration `env:"REGISTRATION_WINDOW" envDefault:"24h"`
	PasswordResetWindow time.Duration `env:"PASSWORD_RESET_WINDOW" envDefault:"30m"`
	FrontendURL         string        `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	StrictOAuthProvider bool          `env:"STRICT_OAUTH_PROVIDER" envDefault:"false"`

	ListenAddr     string `env:"LISTEN_ADDR" envDefault:":8080"`
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"postgres://postgres:@localhost:5432/accounts?sslmode=disable"`
	StagingBackend string `env:"STAGING_BACKEND" envDefault:"sql"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	ReaperSchedule string `env:"REAPER_SCHEDULE" envDefault:"0 * * * *"`

	GoogleClientID string `env:"GOOGLE_CLIENT_ID"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"no-reply@localhost"`
}

var _ accounts.Config = (*Config)(nil)

// Load reads the process environment
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom reads environ instead of the process environment when it is not nil
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded values
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.TokenExpiration, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.RegistrationWindow, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.PasswordResetWindow, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.FrontendURL, validation.Required, is.URL),
		validation.Field(&c.ListenAddr, validation.Required),
		validation.Field(&c.DatabaseURL, validation.Required),
		validation.Field(&c.StagingBackend, validation.Required, validation.In(StagingSQL, StagingRedis)),
		validation.Field(&c.RedisAddr, validation.When(c.StagingBackend == StagingRedis, validation.Required)),
		validation.Field(&c.SMTPPort, validation.When(c.SMTPHost != "", validation.Required, validation.Min(1), validation.Max(65535))),
		validation.Field(&c.SMTPFrom, validation.When(c.SMTPHost != "", validation.Required, is.Email)),
	)
}

func (c Config) GetSigningKey() string {
	return c.SigningKey
}

func (c Config) GetTokenExpiration() time.Duration {
	return c.TokenExpiration
}

func (c Config) GetIssuer() string {
	return c.Issuer
}

func (c Config) GetRegistrationWindow() time.Duration {
	return c.RegistrationWindow
}

func (c Config) GetPasswordResetWindow() time.Duration {
	return c.PasswordResetWindow
}

func (c Config) GetFrontendURL() string {
	return c.FrontendURL
}

func (c Config) GetStrictOAuthProvider() bool {
	return c.StrictOAuthProvider
}
