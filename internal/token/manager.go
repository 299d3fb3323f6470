// Package token issues and verifies the dashboard's signed access and refresh
// tokens.  A Manager holds only immutable configuration and is safe for
// concurrent use.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/nurox-dashboard/internal/roles"
)

// TypeRefresh marks refresh tokens.  Access tokens carry no type.
const TypeRefresh = "refresh"

const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the payload of both token kinds.
type Claims struct {
	UserID string     `json:"userId"`
	Email  string     `json:"email"`
	Role   roles.Role `json:"role"`
	Type   string     `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// IsRefresh reports whether the claims belong to a refresh token.
func (c *Claims) IsRefresh() bool { return c.Type == TypeRefresh }

// Subject identifies the account a token is minted for.
type Subject struct {
	UserID string
	Email  string
	Role   roles.Role
}

// Config configures a Manager.  Secret is required.
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now overrides the clock, used by tests.
	Now func() time.Time
}

// Manager signs and verifies HS256 tokens.
type Manager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewManager validates cfg and fills in defaults.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token: secret is required")
	}
	m := &Manager{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}
	if m.accessTTL <= 0 {
		m.accessTTL = DefaultAccessTTL
	}
	if m.refreshTTL <= 0 {
		m.refreshTTL = DefaultRefreshTTL
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }
