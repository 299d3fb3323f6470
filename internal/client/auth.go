package client

import (
	"context"
	"net/http"
	"time"

	"github.com/iliyamo/nurox-dashboard/internal/model"
)

// LoginResult is the data of a successful login.
type LoginResult struct {
	User         model.Identity `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	ExpiresAt    time.Time      `json:"expiresAt"`
}

// RefreshResult is the data of a successful refresh.
type RefreshResult struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Login posts credentials.  Rejections are *APIError with the follow-up
// flags set.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

// Me returns the identity behind an access token.
func (c *Client) Me(ctx context.Context, access string) (model.Identity, error) {
	var out model.Identity
	err := c.do(ctx, http.MethodGet, "/auth/me", access, nil, &out)
	return out, err
}

// Logout tells the server the session ended.  The access token may be empty.
func (c *Client) Logout(ctx context.Context, access string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", access, nil, nil)
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (RefreshResult, error) {
	var out RefreshResult
	err := c.do(ctx, http.MethodPost, "/auth/refresh-token", "", map[string]string{
		"refreshToken": refresh,
	}, &out)
	return out, err
}

// Get fetches an authenticated API resource into out.
func (c *Client) Get(ctx context.Context, path, access string, out any) error {
	return c.do(ctx, http.MethodGet, path, access, nil, out)
}
