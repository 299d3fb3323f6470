package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/nurox-dashboard/internal/guard"
	"github.com/iliyamo/nurox-dashboard/internal/middleware"
	"github.com/iliyamo/nurox-dashboard/internal/roles"
)

// Dashboard describes the dashboard surface the caller may use.  The route
// runs behind RequireDashboardSegment, so the segment is always the
// caller's own.
func Dashboard(c echo.Context) error {
	cl, found := middleware.ClaimsFrom(c)
	if !found {
		return middleware.Fail(c, http.StatusUnauthorized, "Authorization token required", "token_missing", nil)
	}
	return ok(c, "Dashboard access granted", echo.Map{
		"segment":     c.Param("segment"),
		"role":        cl.Role,
		"permissions": roles.Permissions(cl.Role),
	})
}

// DashboardPage answers /dashboard page requests admitted by DashboardGate.
// Rendering lives in the front end.
func DashboardPage(c echo.Context) error {
	cl, found := middleware.ClaimsFrom(c)
	if !found {
		return c.Redirect(http.StatusFound, guard.LoginPath)
	}
	route, _ := roles.DashboardRoute(cl.Role)
	return ok(c, "", echo.Map{
		"route":       route,
		"path":        c.Request().URL.Path,
		"role":        cl.Role,
		"permissions": roles.Permissions(cl.Role),
	})
}

// LoginPage is where the gate sends anonymous and forced-out users.  It
// echoes the notice so the front end can show the mobile app message.
func LoginPage(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"success": true, "notice": c.QueryParam("notice")})
}
