package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/nurox-dashboard/internal/obs"
	"github.com/iliyamo/nurox-dashboard/internal/token"
)

// Verifier validates access tokens.  *token.Manager satisfies it.
type Verifier interface {
	Verify(raw string) (*token.Claims, error)
}

type jwtOptions struct {
	queryParam string
	metrics    *obs.Metrics
}

// JWTOption customises JWTAuth.
type JWTOption func(*jwtOptions)

// WithQueryToken also accepts the token from the named query parameter when
// the Authorization header is absent.  Browsers cannot set headers on a
// websocket handshake.
func WithQueryToken(name string) JWTOption {
	return func(o *jwtOptions) { o.queryParam = name }
}

// WithMetrics counts verification results.
func WithMetrics(m *obs.Metrics) JWTOption {
	return func(o *jwtOptions) { o.metrics = m }
}

// JWTAuth validates the bearer access token and stores its claims in the
// context.  Each failure kind gets its own message and code so the client
// can tell a legacy token (log in again) from an expired one (refresh).
func JWTAuth(v Verifier, opts ...JWTOption) echo.MiddlewareFunc {
	var o jwtOptions
	for _, fn := range opts {
		fn(&o)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := token.ExtractBearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil && o.queryParam != "" {
				if q := c.QueryParam(o.queryParam); q != "" {
					raw, err = q, nil
				}
			}
			var claims *token.Claims
			if err == nil {
				claims, err = v.Verify(raw)
			}
			if err != nil {
				o.metrics.Verification(token.Code(err))
				return Fail(c, http.StatusUnauthorized, token.Message(err), token.Code(err), nil)
			}
			o.metrics.Verification("ok")
			setClaims(c, claims)
			return next(c)
		}
	}
}

// OptionalJWT stores claims when a valid bearer token is present and passes
// every request through.  Logout uses it because it must always succeed.
func OptionalJWT(v Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw, err := token.ExtractBearer(c.Request().Header.Get(echo.HeaderAuthorization)); err == nil {
				if claims, err := v.Verify(raw); err == nil {
					setClaims(c, claims)
				}
			}
			return next(c)
		}
	}
}
