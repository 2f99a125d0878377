// Package google verifies Google ID tokens through the tokeninfo endpoint.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/oauth"
)

const (
	// Name is the provider identifier
	Name = "google"

	defaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
)

// Config holds Google verification options
type Config struct {
	// ClientID, when set, must match the aud claim of the token
	ClientID     string
	TokenInfoURL string
	HTTPClient   *http.Client
}

// Verifier implements oauth.Verifier for Google ID tokens
type Verifier struct {
	config     Config
	httpClient *http.Client
}

var _ oauth.Verifier = (*Verifier)(nil)

func New(cfg Config) *Verifier {
	if cfg.TokenInfoURL == "" {
		cfg.TokenInfoURL = defaultTokenInfoURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Verifier{
		config:     cfg,
		httpClient: client,
	}
}

func (v *Verifier) Name() string {
	return Name
}

// Verify implements oauth.Verifier.
func (v *Verifier) Verify(ctx context.Context, idToken string) (*oauth.Claims, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, oauth.VerificationFailed(Name, 0, "id token is required", nil)
	}

	endpoint := v.config.TokenInfoURL + "?" + url.Values{"id_token": {idToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, oauth.Unavailable(Name, 0, err)
	}

	resp, err := v.httpClient.Do(req)
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
		return nil, oauth.VerificationFailed(Name, resp.StatusCode, parseGoogleError(body), nil)
	}

	if len(body) == 0 {
		return nil, oauth.VerificationFailed(Name, resp.StatusCode, "empty tokeninfo response", nil)
	}

	var info tokenInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, oauth.VerificationFailed(Name, resp.StatusCode, "invalid tokeninfo response", err)
	}

	if info.Email == "" {
		return nil, oauth.VerificationFailed(Name, resp.StatusCode, "token has no email", nil)
	}

	if v.config.ClientID != "" && info.Audience != v.config.ClientID {
		return nil, oauth.VerificationFailed(Name, resp.StatusCode, "token audience mismatch", nil)
	}

	raw := map[string]any{}
	_ = json.Unmarshal(body, &raw)

	return &oauth.Claims{
		Email:      info.Email,
		GivenName:  info.GivenName,
		FamilyName: info.FamilyName,
		Raw:        raw,
	}, nil
}

type tokenInfo struct {
	Audience   string `json:"aud"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

func parseGoogleError(body []byte) string {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "token rejected"
	}
	if payload.ErrorDescription != "" {
		return payload.ErrorDescription
	}
	if payload.Error != "" {
		return payload.Error
	}
	return "token rejected"
}
