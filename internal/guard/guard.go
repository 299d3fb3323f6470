// Package guard decides what a dashboard path shows for a given session
// state.  Decide is pure; Enforce applies the forced logout a decision may
// require.
package guard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/nurox-dashboard/internal/roles"
)

// Action is the outcome of a guard decision.
type Action int

const (
	// Loading means the session is not ready yet; show a placeholder and
	// do not redirect.
	Loading Action = iota
	RedirectLogin
	// ForceLogout ends the session of a mobile-only role, shows Notice and
	// redirects to Target after Delay.
	ForceLogout
	RedirectRole
	Render
)

func (a Action) String() string {
	switch a {
	case Loading:
		return "loading"
	case RedirectLogin:
		return "redirect_login"
	case ForceLogout:
		return "force_logout"
	case RedirectRole:
		return "redirect_role"
	case Render:
		return "render"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

const (
	LoginPath       = "/login"
	DashboardPrefix = "/dashboard"

	// ForceLogoutDelay is how long the mobile app notice stays up before
	// the redirect to the login page.
	ForceLogoutDelay = 5 * time.Second
)

// State is the part of a session the guard reads.
type State struct {
	Ready         bool
	Authenticated bool
	Role          roles.Role
}

// Decision tells the caller what to do.  Target is set for redirects.
type Decision struct {
	Action Action
	Target string
	Notice string
	Delay  time.Duration
}

// Decide evaluates segment (the first path element after /dashboard) for s.
// An empty segment or another role's route sends an authenticated user to
// their own dashboard.  Other segments are shared pages such as
// /dashboard/prescriptions/new and render for any dashboard role.
func Decide(s State, segment string) Decision {
	switch {
	case !s.Ready:
		return Decision{Action: Loading}
	case !s.Authenticated:
		return Decision{Action: RedirectLogin, Target: LoginPath}
	}
	route, ok := roles.DashboardRoute(s.Role)
	if !ok {
		return Decision{
			Action: ForceLogout,
			Target: LoginPath,
			Notice: MobileAppNotice(s.Role),
			Delay:  ForceLogoutDelay,
		}
	}
	if segment == "" || (isRoleRoute(segment) && !roles.CanAccessRoute(s.Role, segment)) {
		return Decision{Action: RedirectRole, Target: DashboardPath(route)}
	}
	return Decision{Action: Render}
}

func isRoleRoute(segment string) bool { return len(roles.RolesForRoute(segment)) > 0 }

// MobileAppNotice is the message shown to mobile-only roles.
func MobileAppNotice(r roles.Role) string {
	return fmt.Sprintf("Access denied. %s should use the Nurox Mobile App.", roles.DisplayName(r))
}

// DashboardPath returns the URL path of a dashboard route segment.
func DashboardPath(route string) string { return DashboardPrefix + "/" + route }

// SegmentFromPath extracts the route segment from a dashboard URL path.  ok is
// false for paths outside /dashboard; "/dashboard" itself yields "".
func SegmentFromPath(path string) (segment string, ok bool) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	rest, found := strings.CutPrefix(path, DashboardPrefix)
	if !found || (rest != "" && rest[0] != '/') {
		return "", false
	}
	rest = strings.TrimPrefix(rest, "/")
	segment, _, _ = strings.Cut(rest, "/")
	return segment, true
}

// Session is what Enforce needs from a session store.
type Session interface {
	GuardState() State
	Logout(ctx context.Context) error
}

// Enforce decides for path and, when the decision is ForceLogout, logs the
// session out before returning.  Paths outside /dashboard render.
func Enforce(ctx context.Context, s Session, path string) (Decision, error) {
	segment, ok := SegmentFromPath(path)
	if !ok {
		return Decision{Action: Render}, nil
	}
	d := Decide(s.GuardState(), segment)
	if d.Action == ForceLogout {
		if err := s.Logout(ctx); err != nil {
			return d, fmt.Errorf("forced logout: %w", err)
		}
	}
	return d, nil
}
