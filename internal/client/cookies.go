package client

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/iliyamo/nurox-dashboard/internal/middleware"
)

// accessCookieMaxAge matches the access token lifetime.
const accessCookieMaxAge = 86400

// JarCookies mirrors the access token into a cookie jar so page requests
// pass the server's dashboard gate.
type JarCookies struct {
	Jar http.CookieJar
	URL *url.URL
}

// NewJarCookies scopes cookies to the host of siteURL.
func NewJarCookies(jar http.CookieJar, siteURL string) (*JarCookies, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("client: cookie url: %w", err)
	}
	return &JarCookies{Jar: jar, URL: &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}}, nil
}

// SetAccessToken stores the token.  The cookie is Secure on https sites.
func (j *JarCookies) SetAccessToken(tok string) error {
	j.Jar.SetCookies(j.URL, []*http.Cookie{{
		Name:     middleware.AccessCookie,
		Value:    tok,
		Path:     "/",
		MaxAge:   accessCookieMaxAge,
		Secure:   j.URL.Scheme == "https",
		SameSite: http.SameSiteStrictMode,
	}})
	return nil
}

func (j *JarCookies) ClearAccessToken() error {
	j.Jar.SetCookies(j.URL, []*http.Cookie{{
		Name:   middleware.AccessCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}})
	return nil
}

// AccessToken returns the cookie value currently held by the jar.
func (j *JarCookies) AccessToken() string {
	for _, c := range j.Jar.Cookies(j.URL) {
		if c.Name == middleware.AccessCookie {
			return c.Value
		}
	}
	return ""
}
