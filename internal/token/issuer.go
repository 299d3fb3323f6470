package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Pair is the result of a successful login.
type Pair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AccessGrant is a single access token, returned by refresh.
type AccessGrant struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Issue mints an access and a refresh token for s.  Nothing is persisted.
func (m *Manager) Issue(s Subject) (Pair, error) {
	access, err := m.IssueAccess(s)
	if err != nil {
		return Pair{}, err
	}
	refresh, exp, err := m.sign(s, TypeRefresh, m.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access.AccessToken,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: exp,
	}, nil
}

// IssueAccess mints only an access token.
func (m *Manager) IssueAccess(s Subject) (AccessGrant, error) {
	raw, exp, err := m.sign(s, "", m.accessTTL)
	if err != nil {
		return AccessGrant{}, err
	}
	return AccessGrant{AccessToken: raw, ExpiresAt: exp}, nil
}

func (m *Manager) sign(s Subject, typ string, ttl time.Duration) (string, time.Time, error) {
	if s.UserID == "" || !s.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("token: incomplete subject %q", s.UserID)
	}
	// JWT timestamps have second precision
	now := m.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)
	claims := Claims{
		UserID: s.UserID,
		Email:  s.Email,
		Role:   s.Role,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   s.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, exp, nil
}
