package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/nurox-dashboard/internal/guard"
	"github.com/iliyamo/nurox-dashboard/internal/roles"
)

// Codes for 403 responses.
const (
	CodeMobileOnly       = "mobile_only_role"
	CodeWrongDashboard   = "wrong_dashboard"
	CodePermissionDenied = "permission_denied"
)

// RequireDashboardSegment enforces on the server what the route guard
// enforces in the client: the :param segment must be the caller's own
// dashboard route, and mobile-only roles get none.  It must run after
// JWTAuth.
func RequireDashboardSegment(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cl, ok := ClaimsFrom(c)
			if !ok {
				return Fail(c, http.StatusUnauthorized, "Authorization token required", "token_missing", nil)
			}
			route, eligible := roles.DashboardRoute(cl.Role)
			if !eligible {
				return Fail(c, http.StatusForbidden, guard.MobileAppNotice(cl.Role), CodeMobileOnly, echo.Map{
					"requiresMobileApp": true,
					"redirectTo":        guard.LoginPath,
				})
			}
			if !roles.CanAccessRoute(cl.Role, c.Param(param)) {
				return Fail(c, http.StatusForbidden, "Access denied for this dashboard", CodeWrongDashboard, echo.Map{
					"redirectTo": guard.DashboardPath(route),
				})
			}
			return next(c)
		}
	}
}

// RequirePermission rejects callers whose role lacks p.  It must run after
// JWTAuth.
func RequirePermission(p roles.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cl, ok := ClaimsFrom(c)
			if !ok {
				return Fail(c, http.StatusUnauthorized, "Authorization token required", "token_missing", nil)
			}
			if !roles.HasPermission(cl.Role, p) {
				return Fail(c, http.StatusForbidden, "Insufficient permissions", CodePermissionDenied, echo.Map{
					"permission": p,
				})
			}
			return next(c)
		}
	}
}
