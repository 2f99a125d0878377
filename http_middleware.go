package accounts

import (
	"strings"

	"github.com/goliatone/go-router"
)

const (
	// SessionCookieName is the cookie that may carry the session token
	SessionCookieName = "jwt"

	claimsLocalsKey = "accounts.claims"
)

// ProtectedRoute rejects requests without a valid session token. The token is
// read from the Authorization bearer header, then from the session cookie.
// Claims are stored in the route locals and in the request context.
func ProtectedRoute(tokens *TokenService, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	if errorHandler == nil {
		errorHandler = writeError
	}

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			raw := bearerToken(c.GetString(router.HeaderAuthorization, ""))
			if raw == "" {
				raw = c.Cookies(SessionCookieName)
			}

			if raw == "" {
				return errorHandler(c, ErrInvalidToken(nil, false))
			}

			claims, err := tokens.Validate(raw)
			if err != nil {
				return errorHandler(c, err)
			}

			c.Locals(claimsLocalsKey, claims)
			c.SetContext(WithClaimsContext(c.Context(), claims))
			return hf(c)
		}
	}
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
