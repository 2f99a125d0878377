package accounts

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenExpiration is the session lifetime used when none is configured
const DefaultTokenExpiration = 24 * time.Hour

var signingMethod = jwt.SigningMethodHS384

// TokenService mints and validates session tokens
type TokenService struct {
	signingKey []byte
	expiration time.Duration
	issuer     string
	now        clock
	logger     Logger
}

// NewTokenService creates a token service from the signing key, TTL and issuer in cfg
func NewTokenService(cfg Config, logger Logger) *TokenService {
	if logger == nil {
		logger = defLogger{}
	}

	expiration := cfg.GetTokenExpiration()
	if expiration <= 0 {
		expiration = DefaultTokenExpiration
	}

	return &TokenService{
		signingKey: []byte(cfg.GetSigningKey()),
		expiration: expiration,
		issuer:     cfg.GetIssuer(),
		now:        defaultClock,
		logger:     logger,
	}
}

// WithClock overrides the time source
func (ts *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		ts.now = now
	}
	return ts
}

// Issue mints a token for identity
func (ts *TokenService) Issue(identity *Identity) (string, error) {
	if identity == nil {
		return "", fmt.Errorf("identity must not be nil")
	}

	now := ts.now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   identity.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.expiration)),
		},
		Email:    identity.Email,
		Provider: identity.Provider,
	}

	token := jwt.NewWithClaims(signingMethod, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", ErrUnavailable(err, "failed to sign session token")
	}

	return signed, nil
}

// Validate parses token and returns its claims. Any failure, including a bad
// signature or an unexpected algorithm, is reported as an invalid token.
func (ts *TokenService) Validate(token string) (*SessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithTimeFunc(ts.now),
		jwt.WithIssuedAt(),
	}
	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, opts...)

	if err != nil {
		return nil, ErrInvalidToken(err, errors.Is(err, jwt.ErrTokenExpired))
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid || claims.Email == "" {
		return nil, ErrInvalidToken(nil, false)
	}

	return claims, nil
}
