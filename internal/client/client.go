// Package client talks to the dashboard API from the client side: the auth
// endpoints, the access token cookie and the notification channel.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iliyamo/nurox-dashboard/internal/roles"
	"github.com/iliyamo/nurox-dashboard/internal/token"
)

// DefaultTimeout bounds every API call.
const DefaultTimeout = 10 * time.Second

// ErrNetworkUnavailable means the API could not be reached or did not
// answer in time.  Callers keep their session when they see it.
var ErrNetworkUnavailable = errors.New("client: network unavailable")

// APIError is a non-2xx response carrying the server's error envelope.
type APIError struct {
	Status  int
	Message string
	Code    string
	Role    roles.Role

	RequiresMobileApp    bool
	RequiresProfileSetup bool
	RequiresOrganization bool
	RedirectTo           string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// Unauthorized reports a 401.
func (e *APIError) Unauthorized() bool { return e.Status == http.StatusUnauthorized }

// Refreshable reports a 401 that a token refresh may fix.  Legacy and
// malformed tokens need a new login.
func (e *APIError) Refreshable() bool { return e.Unauthorized() && token.Recoverable(e.Code) }

// envelope is the body shape of every API response.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`

	Role                 string `json:"role"`
	RequiresMobileApp    bool   `json:"requiresMobileApp"`
	RequiresProfileSetup bool   `json:"requiresProfileSetup"`
	RequiresOrganization bool   `json:"requiresOrganization"`
	RedirectTo           string `json:"redirectTo"`
}

// Client is safe for concurrent use.
type Client struct {
	base string
	http *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, for example to share a
// cookie jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for the API rooted at base, e.g.
// "http://localhost:8080/api".
func New(base string, opts ...Option) (*Client, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("client: base url %q must be http or https", base)
	}
	c := &Client{base: base, http: &http.Client{Timeout: DefaultTimeout}}
	for _, fn := range opts {
		fn(c)
	}
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.base }

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client { return c.http }

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil {
			apiErr.Code = env.Code
			if env.Message != "" {
				apiErr.Message = env.Message
			}
			apiErr.RequiresMobileApp = env.RequiresMobileApp
			apiErr.RequiresProfileSetup = env.RequiresProfileSetup
			apiErr.RequiresOrganization = env.RequiresOrganization
			apiErr.RedirectTo = env.RedirectTo
			if r, err := roles.ParseRole(env.Role); err == nil {
				apiErr.Role = r
			}
		}
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %w", ErrNetworkUnavailable, apiErr)
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, decodeErr)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("client: decode %s %s data: %w", method, path, err)
		}
	}
	return nil
}
