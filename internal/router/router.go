// Package router registers the HTTP routes of the dashboard API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/nurox-dashboard/internal/handler"
	"github.com/iliyamo/nurox-dashboard/internal/middleware"
	"github.com/iliyamo/nurox-dashboard/internal/obs"
	"github.com/iliyamo/nurox-dashboard/internal/roles"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, m *obs.Metrics) {
	e.GET("/healthz", handler.Health)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
}

// RegisterAuth registers the auth endpoints under /api/auth.  Login and
// refresh carry their credentials in the body; me requires a bearer token;
// logout accepts one when present.
func RegisterAuth(api *echo.Group, a *handler.AuthHandler, v middleware.Verifier, limit echo.MiddlewareFunc) {
	g := api.Group("/auth")
	g.POST("/login", a.Login, limit)
	g.POST("/refresh-token", a.RefreshToken, limit)
	g.POST("/logout", a.Logout, middleware.OptionalJWT(v))
	g.GET("/me", a.Me, middleware.JWTAuth(v, middleware.WithMetrics(a.Metrics)))
}

// RegisterDashboard registers the server side role checks: the dashboard
// API, the audit trail and the /dashboard page gate.
func RegisterDashboard(e *echo.Echo, api *echo.Group, v middleware.Verifier, audit *handler.AuditHandler) {
	auth := middleware.JWTAuth(v)
	api.GET("/dashboard/:segment", handler.Dashboard, auth, middleware.RequireDashboardSegment("segment"))
	api.GET("/audit/events", audit.List, auth, middleware.RequirePermission(roles.PermAuditLogs))

	gate := middleware.DashboardGate(v)
	e.GET("/dashboard", handler.DashboardPage, gate)
	e.GET("/dashboard/*", handler.DashboardPage, gate)
	e.GET("/login", handler.LoginPage)
}

// RegisterNotifications registers the notification websocket.
func RegisterNotifications(e *echo.Echo, n *handler.NotificationHandler, v middleware.Verifier) {
	e.GET("/ws/notifications", n.Connect, middleware.JWTAuth(v, middleware.WithQueryToken("token")))
}
