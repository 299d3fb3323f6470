package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/nurox-dashboard/internal/middleware"
	"github.com/iliyamo/nurox-dashboard/internal/model"
	"github.com/iliyamo/nurox-dashboard/internal/obs"
	"github.com/iliyamo/nurox-dashboard/internal/queue"
	"github.com/iliyamo/nurox-dashboard/internal/repository"
	"github.com/iliyamo/nurox-dashboard/internal/roles"
	"github.com/iliyamo/nurox-dashboard/internal/service"
	"github.com/iliyamo/nurox-dashboard/internal/token"
)

// CodeAccountInactive is sent when a token belongs to a deleted or disabled
// account.
const CodeAccountInactive = "account_inactive"

// CredentialValidator checks a login.  *service.Validator satisfies it.
type CredentialValidator interface {
	Validate(ctx context.Context, email, password string) (model.Identity, error)
}

// AccountLoader loads accounts by id.  *repository.AccountRepo satisfies it.
type AccountLoader interface {
	GetByID(ctx context.Context, id string) (model.Account, error)
}

// Disconnecter closes live notification connections.  *notify.Hub
// satisfies it.
type Disconnecter interface {
	DisconnectUser(userID string) int
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Validator CredentialValidator
	Accounts  AccountLoader
	Tokens    *token.Manager
	Hub       Disconnecter
	Audit     service.Auditor
	Metrics   *obs.Metrics
	Log       zerolog.Logger
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type loginData struct {
	User         model.Identity `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	ExpiresAt    time.Time      `json:"expiresAt"`
}

type refreshData struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func ok(c echo.Context, message string, data any) error {
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": message, "data": data})
}

func (h *AuthHandler) record(c echo.Context, kind queue.AuthEventKind, fill func(*queue.AuthEvent)) {
	if h.Audit == nil {
		return
	}
	ev := queue.NewAuthEvent(kind)
	ev.RemoteIP = c.RealIP()
	ev.RequestID = middleware.RequestIDFrom(c)
	if fill != nil {
		fill(&ev)
	}
	h.Audit.Record(c.Request().Context(), ev)
}

// Login verifies credentials and returns the identity with a token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return middleware.Fail(c, http.StatusBadRequest, "Invalid request body", "invalid_body", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return middleware.Fail(c, http.StatusBadRequest, "Email and password are required", "missing_fields", nil)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	identity, err := h.Validator.Validate(ctx, req.Email, req.Password)
	var le *service.LoginError
	if errors.As(err, &le) {
		h.Metrics.Login(string(le.Kind))
		h.record(c, queue.EventLoginFailed, func(ev *queue.AuthEvent) {
			ev.Email = strings.TrimSpace(req.Email)
			ev.Reason = string(le.Kind)
		})
		return middleware.Fail(c, http.StatusUnauthorized, le.Message, string(le.Kind), loginFailureFlags(le))
	}
	if err != nil {
		h.Metrics.Login("error")
		h.Log.Error().Err(err).Str("request_id", middleware.RequestIDFrom(c)).Msg("login failed")
		return middleware.Fail(c, http.StatusInternalServerError, "Internal server error", "internal_error", nil)
	}

	pair, err := h.Tokens.Issue(token.Subject{UserID: identity.ID, Email: identity.Email, Role: identity.Role})
	if err != nil {
		h.Metrics.Login("error")
		h.Log.Error().Err(err).Msg("issue tokens failed")
		return middleware.Fail(c, http.StatusInternalServerError, "Internal server error", "internal_error", nil)
	}

	h.Metrics.Login("success")
	h.record(c, queue.EventLoginSucceeded, func(ev *queue.AuthEvent) {
		ev.UserID, ev.Email, ev.Role = identity.ID, identity.Email, identity.Role.String()
	})
	return ok(c, "Login successful", loginData{
		User:         identity,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExpiresAt,
	})
}

// loginFailureFlags adds the flag the client uses to pick its follow-up
// screen.
func loginFailureFlags(le *service.LoginError) echo.Map {
	extra := echo.Map{}
	if le.Role.Valid() {
		extra["role"] = le.Role
	}
	switch le.Kind {
	case service.MobileOnlyRole:
		extra["requiresMobileApp"] = true
	case service.ProfileIncomplete:
		extra["requiresProfileSetup"] = true
	case service.OrganizationMissing:
		extra["requiresOrganization"] = true
	}
	return extra
}

// Me returns the current identity.  It runs behind JWTAuth and reloads the
// account so deleted or disabled users are rejected.
func (h *AuthHandler) Me(c echo.Context) error {
	claims, found := middleware.ClaimsFrom(c)
	if !found {
		return middleware.Fail(c, http.StatusUnauthorized, token.Message(token.ErrMissing), token.CodeMissing, nil)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	a, err := h.Accounts.GetByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !a.IsActive) {
		return middleware.Fail(c, http.StatusUnauthorized, "User not found or inactive", CodeAccountInactive, nil)
	}
	if err != nil {
		h.Log.Error().Err(err).Str("user_id", claims.UserID).Msg("load account failed")
		return middleware.Fail(c, http.StatusInternalServerError, "Internal server error", "internal_error", nil)
	}
	return ok(c, "User retrieved", model.NewIdentity(a))
}

// Logout always succeeds.  With a valid bearer token it closes the user's
// notification connections.  Issued refresh tokens stay valid until they
// expire; there is no revocation list.
func (h *AuthHandler) Logout(c echo.Context) error {
	if claims, found := middleware.ClaimsFrom(c); found {
		if h.Hub != nil {
			h.Hub.DisconnectUser(claims.UserID)
		}
		h.record(c, queue.EventLogout, func(ev *queue.AuthEvent) {
			ev.UserID, ev.Email, ev.Role = claims.UserID, claims.Email, claims.Role.String()
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Logged out successfully"})
}

// RefreshToken exchanges a refresh token for a new access token.  The
// account is reloaded so a disabled user cannot keep refreshing.
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return middleware.Fail(c, http.StatusBadRequest, "Refresh token required", "missing_fields", nil)
	}

	claims, err := h.Tokens.VerifyRefresh(strings.TrimSpace(req.RefreshToken))
	if err != nil {
		h.Metrics.Refresh(token.Code(err))
		h.record(c, queue.EventRefreshFailed, func(ev *queue.AuthEvent) { ev.Reason = token.Code(err) })
		return middleware.Fail(c, http.StatusUnauthorized, token.Message(err), token.Code(err), nil)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	a, err := h.Accounts.GetByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !a.IsActive) {
		h.Metrics.Refresh(CodeAccountInactive)
		return middleware.Fail(c, http.StatusUnauthorized, "User not found or inactive", CodeAccountInactive, nil)
	}
	if err != nil {
		h.Log.Error().Err(err).Str("user_id", claims.UserID).Msg("load account failed")
		return middleware.Fail(c, http.StatusInternalServerError, "Internal server error", "internal_error", nil)
	}
	if !roles.DashboardEligible(a.Role) {
		h.Metrics.Refresh(middleware.CodeMobileOnly)
		return middleware.Fail(c, http.StatusUnauthorized,
			"Dashboard access denied. "+roles.DisplayName(a.Role)+" must use the Nurox Mobile App.",
			middleware.CodeMobileOnly, echo.Map{"requiresMobileApp": true})
	}

	grant, err := h.Tokens.IssueAccess(token.Subject{UserID: a.ID, Email: a.Email, Role: a.Role})
	if err != nil {
		h.Log.Error().Err(err).Msg("issue access token failed")
		return middleware.Fail(c, http.StatusInternalServerError, "Internal server error", "internal_error", nil)
	}
	h.Metrics.Refresh("ok")
	h.record(c, queue.EventTokenRefreshed, func(ev *queue.AuthEvent) {
		ev.UserID, ev.Email, ev.Role = a.ID, a.Email, a.Role.String()
	})
	return ok(c, "Token refreshed", refreshData{AccessToken: grant.AccessToken, ExpiresAt: grant.ExpiresAt})
}
