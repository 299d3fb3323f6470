package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var legacyPrefixes = []string{"access_token_", "mock_"}

// ExtractBearer pulls the token out of an Authorization header value.
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissing
	}
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissing
	}
	return strings.TrimSpace(raw), nil
}

// classify rejects values that are not worth handing to the JWT parser.
func classify(raw string) error {
	switch strings.TrimSpace(raw) {
	case "", "null", "undefined":
		return ErrMalformed
	}
	for _, p := range legacyPrefixes {
		if strings.HasPrefix(raw, p) {
			return ErrLegacy
		}
	}
	if !strings.Contains(raw, ".") {
		return ErrLegacy
	}
	if strings.Count(raw, ".") != 2 {
		return ErrMalformed
	}
	return nil
}

// Verify validates an access token.  Refresh tokens are rejected with
// ErrWrongType.
func (m *Manager) Verify(raw string) (*Claims, error) {
	c, err := m.parse(raw)
	if err != nil {
		return nil, err
	}
	if c.IsRefresh() {
		return nil, ErrWrongType
	}
	return c, nil
}

// VerifyRefresh validates a refresh token.  Access tokens are rejected with
// ErrWrongType.
func (m *Manager) VerifyRefresh(raw string) (*Claims, error) {
	c, err := m.parse(raw)
	if err != nil {
		return nil, err
	}
	if !c.IsRefresh() {
		return nil, ErrWrongType
	}
	return c, nil
}

// Refresh exchanges a refresh token for a new access token carrying the same
// identity claims.
func (m *Manager) Refresh(raw string) (AccessGrant, error) {
	c, err := m.VerifyRefresh(raw)
	if err != nil {
		return AccessGrant{}, err
	}
	return m.IssueAccess(Subject{UserID: c.UserID, Email: c.Email, Role: c.Role})
}

func (m *Manager) parse(raw string) (*Claims, error) {
	if err := classify(raw); err != nil {
		return nil, err
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %w", ErrExpired, err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !tok.Valid {
		return nil, ErrInvalid
	}
	if claims.UserID == "" || !claims.Role.Valid() {
		return nil, ErrPayload
	}
	return claims, nil
}
