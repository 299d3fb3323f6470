package middleware

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/nurox-dashboard/internal/guard"
)

// AccessCookie is the cookie the client mirrors its access token into.
const AccessCookie = "accessToken"

// NoticeMobileApp is the login page notice for a forced mobile-only logout.
const NoticeMobileApp = "mobile-app"

// DashboardGate guards /dashboard page requests using the access token
// cookie.  It applies the same decisions as the client route guard, so a
// direct URL never reaches another role's dashboard.
func DashboardGate(v Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			segment, ok := guard.SegmentFromPath(c.Request().URL.Path)
			if !ok {
				return next(c)
			}
			ck, err := c.Cookie(AccessCookie)
			if err != nil || ck.Value == "" {
				return c.Redirect(http.StatusFound, guard.LoginPath)
			}
			claims, err := v.Verify(ck.Value)
			if err != nil {
				clearAccessCookie(c)
				return c.Redirect(http.StatusFound, guard.LoginPath)
			}

			d := guard.Decide(guard.State{Ready: true, Authenticated: true, Role: claims.Role}, segment)
			switch d.Action {
			case guard.ForceLogout:
				clearAccessCookie(c)
				q := url.Values{"notice": {NoticeMobileApp}}
				return c.Redirect(http.StatusFound, d.Target+"?"+q.Encode())
			case guard.RedirectRole, guard.RedirectLogin:
				return c.Redirect(http.StatusFound, d.Target)
			}
			setClaims(c, claims)
			return next(c)
		}
	}
}

// clearAccessCookie expires the cookie with the attributes the client set
// it with; Secure only on https.
func clearAccessCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     AccessCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   c.Scheme() == "https",
		SameSite: http.SameSiteStrictMode,
	})
}
