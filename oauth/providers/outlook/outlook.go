// Package outlook verifies Microsoft access tokens against the Graph /me endpoint.
package outlook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/oauth"
	"golang.org/x/oauth2"
)

const (
	// Name is the provider identifier
	Name = "outlook"

	defaultProfileURL = "https://graph.microsoft.com/v1.0/me"
)

// Config holds Microsoft Graph verification options
type Config struct {
	ProfileURL string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Verifier implements oauth.Verifier for Microsoft access tokens
type Verifier struct {
	config     Config
	httpClient *http.Client
}

var _ oauth.Verifier = (*Verifier)(nil)

func New(cfg Config) *Verifier {
	if cfg.ProfileURL == "" {
		cfg.ProfileURL = defaultProfileURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Verifier{
		config:     cfg,
		httpClient: client,
	}
}

func (v *Verifier) Name() string {
	return Name
}

// Verify implements oauth.Verifier. The credential is sent as a bearer token.
func (v *Verifier) Verify(ctx context.Context, accessToken string) (*oauth.Claims, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, oauth.VerificationFailed(Name, 0, "access token is required", nil)
	}

	// the oauth2 transport does not inherit the base client timeout
	ctx, cancel := context.WithTimeout(ctx, v.config.Timeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.ProfileURL, nil)
	if err != nil {
		return nil, oauth.Unavailable(Name, 0, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, oauth.Unavailable(Name, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, oauth.Unavailable(Name, resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, oauth.Unavailable(Name, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	}

	if resp.StatusCode/100 != 2 {
		return nil, oauth.VerificationFailed(Name, resp.StatusCode, parseGraphError(body), nil)
	}

	if len(body) == 0 {
		return nil, oauth.VerificationFailed(Name, resp.StatusCode, "empty profile response", nil)
	}

	var p profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, oauth.VerificationFailed(Name, resp.StatusCode, "invalid profile response", err)
	}

	email := p.Mail
	if email == "" {
		email = p.UserPrincipalName
	}
	if email == "" {
		return nil, oauth.VerificationFailed(Name, resp.StatusCode, "profile has no email", nil)
	}

	raw := map[string]any{}
	_ = json.Unmarshal(body, &raw)

	return &oauth.Claims{
		Email:      email,
		GivenName:  p.GivenName,
		FamilyName: p.Surname,
		Raw:        raw,
	}, nil
}

type profile struct {
	ID                string `json:"id"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	GivenName         string `json:"givenName"`
	Surname           string `json:"surname"`
}

func parseGraphError(body []byte) string {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "token rejected"
	}
	if payload.Error.Message != "" {
		return payload.Error.Message
	}
	if payload.Error.Code != "" {
		return payload.Error.Code
	}
	return "token rejected"
}
