package middleware

// identity.go holds the context accessors shared by the auth middleware and
// handlers.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/nurox-dashboard/internal/token"
)

const (
	ctxClaims    = "auth_claims"
	ctxRequestID = "request_id"
)

// ClaimsFrom returns the verified access token claims, if any.
func ClaimsFrom(c echo.Context) (*token.Claims, bool) {
	cl, ok := c.Get(ctxClaims).(*token.Claims)
	return cl, ok && cl != nil
}

// RequestIDFrom returns the request id assigned by RequestID.
func RequestIDFrom(c echo.Context) string {
	s, _ := c.Get(ctxRequestID).(string)
	return s
}

func setClaims(c echo.Context, cl *token.Claims) {
	c.Set(ctxClaims, cl)
}

// currentUserID identifies the caller for rate limit keys.
func currentUserID(c echo.Context) string {
	if cl, ok := ClaimsFrom(c); ok && cl.UserID != "" {
		return cl.UserID
	}
	return "anon"
}
