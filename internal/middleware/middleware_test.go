package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/nurox-dashboard/internal/config"
	"github.com/iliyamo/nurox-dashboard/internal/roles"
	"github.com/iliyamo/nurox-dashboard/internal/token"
)

func newManager(t *testing.T) *token.Manager {
	t.Helper()
	m, err := token.NewManager(token.Config{Secret: "mw-secret", Issuer: "test"})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func issue(t *testing.T, m *token.Manager, r roles.Role) token.Pair {
	t.Helper()
	p, err := m.Issue(token.Subject{UserID: "u-" + r.String(), Email: "x@nurox.lk", Role: r})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body
}

func ok(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestRequestIDGeneratesAndPreserves(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := RequestID()(ok)(c); err != nil {
		t.Fatal(err)
	}
	if RequestIDFrom(c) == "" || rec.Header().Get(RequestIDHeader) != RequestIDFrom(c) {
		t.Fatal("expected generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	_ = RequestID()(ok)(c)
	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Fatalf("got %q", rec.Header().Get(RequestIDHeader))
	}
}

func TestJWTAuth(t *testing.T) {
	m := newManager(t)
	pair := issue(t, m, roles.RoleDoctor)

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing", "", http.StatusUnauthorized, token.CodeMissing},
		{"not bearer", "Basic abc", http.StatusUnauthorized, token.CodeMissing},
		{"legacy", "Bearer access_token_123", http.StatusUnauthorized, token.CodeLegacy},
		{"placeholder", "Bearer undefined", http.StatusUnauthorized, token.CodeMalformed},
		{"refresh as access", "Bearer " + pair.RefreshToken, http.StatusUnauthorized, token.CodeWrongType},
		{"valid", "Bearer " + pair.AccessToken, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			var seen *token.Claims
			h := JWTAuth(m)(func(c echo.Context) error {
				seen, _ = ClaimsFrom(c)
				return ok(c)
			})
			if err := h(c); err != nil {
				t.Fatal(err)
			}
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.code == "" {
				if seen == nil || seen.Role != roles.RoleDoctor {
					t.Fatal("claims not stored")
				}
				return
			}
			body := decode(t, rec)
			if body["code"] != tt.code || body["success"] != false {
				t.Fatalf("body = %v", body)
			}
		})
	}
}

func TestJWTAuthQueryToken(t *testing.T) {
	m := newManager(t)
	pair := issue(t, m, roles.RoleHospitalAdmin)
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws/notifications?token="+pair.AccessToken, nil), rec)
	if err := JWTAuth(m, WithQueryToken("token"))(ok)(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestOptionalJWT(t *testing.T) {
	m := newManager(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer garbage")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := OptionalJWT(m)(ok)(c); err != nil {
		t.Fatal(err)
	}
	if _, found := ClaimsFrom(c); found || rec.Code != http.StatusOK {
		t.Fatal("invalid token must pass through without claims")
	}
}

func serveDashboard(t *testing.T, m *token.Manager, r roles.Role, segment string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	g := e.Group("/api/dashboard", JWTAuth(m))
	g.GET("/:segment", ok, RequireDashboardSegment("segment"))
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/"+segment, nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+issue(t, m, r).AccessToken)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequireDashboardSegment(t *testing.T) {
	m := newManager(t)

	if rec := serveDashboard(t, m, roles.RoleDoctor, "doctor"); rec.Code != http.StatusOK {
		t.Fatalf("doctor on doctor: %d", rec.Code)
	}

	rec := serveDashboard(t, m, roles.RoleDoctor, "admin")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("doctor on admin: %d", rec.Code)
	}
	if body := decode(t, rec); body["redirectTo"] != "/dashboard/doctor" || body["code"] != CodeWrongDashboard {
		t.Fatalf("body = %v", body)
	}

	rec = serveDashboard(t, m, roles.RolePatient, "doctor")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("patient: %d", rec.Code)
	}
	if body := decode(t, rec); body["requiresMobileApp"] != true || body["code"] != CodeMobileOnly {
		t.Fatalf("body = %v", body)
	}
}

func TestRequirePermission(t *testing.T) {
	m := newManager(t)
	for _, tt := range []struct {
		role   roles.Role
		status int
	}{
		{roles.RoleSuperAdmin, http.StatusOK},
		{roles.RoleAdmin, http.StatusForbidden},
		{roles.RoleDoctor, http.StatusForbidden},
	} {
		e := echo.New()
		e.GET("/api/audit/events", ok, JWTAuth(m), RequirePermission(roles.PermAuditLogs))
		req := httptest.NewRequest(http.MethodGet, "/api/audit/events", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+issue(t, m, tt.role).AccessToken)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != tt.status {
			t.Errorf("%s: status %d, want %d", tt.role, rec.Code, tt.status)
		}
	}
}

func gate(t *testing.T, m *token.Manager, path, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.GET("/dashboard", ok, DashboardGate(m))
	e.GET("/dashboard/*", ok, DashboardGate(m))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: AccessCookie, Value: cookie})
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestDashboardGate(t *testing.T) {
	m := newManager(t)
	doctor := issue(t, m, roles.RoleDoctor).AccessToken
	patient := issue(t, m, roles.RolePatient).AccessToken

	tests := []struct {
		name     string
		path     string
		cookie   string
		status   int
		location string
		cleared  bool
	}{
		{"no cookie", "/dashboard/doctor", "", http.StatusFound, "/login", false},
		{"legacy cookie", "/dashboard/doctor", "access_token_1", http.StatusFound, "/login", true},
		{"own dashboard", "/dashboard/doctor/patients", doctor, http.StatusOK, "", false},
		{"other dashboard", "/dashboard/admin", doctor, http.StatusFound, "/dashboard/doctor", false},
		{"root", "/dashboard", doctor, http.StatusFound, "/dashboard/doctor", false},
		{"mobile only", "/dashboard/doctor", patient, http.StatusFound, "/login?notice=mobile-app", true},
		{"shared prescriptions page", "/dashboard/prescriptions/new", doctor, http.StatusOK, "", false},
		{"shared lab tests page", "/dashboard/lab-tests/new", doctor, http.StatusOK, "", false},
		{"shared clinical notes page", "/dashboard/clinical-notes/new", doctor, http.StatusOK, "", false},
		{"mobile only on shared page", "/dashboard/prescriptions/new", patient, http.StatusFound, "/login?notice=mobile-app", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := gate(t, m, tt.path, tt.cookie)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if loc := rec.Header().Get("Location"); loc != tt.location {
				t.Fatalf("Location = %q, want %q", loc, tt.location)
			}
			cleared := strings.Contains(rec.Header().Get("Set-Cookie"), AccessCookie+"=;")
			if cleared != tt.cleared {
				t.Fatalf("cookie cleared = %v, want %v (%q)", cleared, tt.cleared, rec.Header().Get("Set-Cookie"))
			}
		})
	}
}

func TestDashboardGateClearsCookieForScheme(t *testing.T) {
	m := newManager(t)
	patient := issue(t, m, roles.RolePatient).AccessToken

	plain := gate(t, m, "/dashboard/doctor", patient).Header().Get("Set-Cookie")
	if !strings.Contains(plain, AccessCookie+"=;") || strings.Contains(plain, "Secure") {
		t.Fatalf("http clear = %q", plain)
	}

	e := echo.New()
	e.GET("/dashboard/*", ok, DashboardGate(m))
	req := httptest.NewRequest(http.MethodGet, "/dashboard/doctor", nil)
	req.Header.Set(echo.HeaderXForwardedProto, "https")
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: patient})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if got := rec.Header().Get("Set-Cookie"); !strings.Contains(got, "Secure") {
		t.Fatalf("https clear = %q", got)
	}
}

func TestRateLimitLocalFallback(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: time.Hour, KeyStrategy: "ip", Prefix: "rl",
	}
	e := echo.New()
	e.GET("/api/auth/login", ok, NewTokenBucket(cfg, nil, zerolog.Nop()))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if i == 2 && rec.Header().Get("Retry-After") == "" {
			t.Fatal("missing Retry-After")
		}
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}

	// a different client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("second client: %d", rec.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil, zerolog.Nop())
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if err := mw(ok)(c); err != nil {
		t.Fatal(err)
	}
}

func TestLoggerAndRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	e.Use(RequestID(), Logger(logger), Recovery(logger))
	e.GET("/boom", func(echo.Context) error { panic("kaboom") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom?token=secret", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	out := buf.String()
	if !strings.Contains(out, "panic recovered") || !strings.Contains(out, `"path":"/boom"`) {
		t.Fatalf("unexpected log output %s", out)
	}
	if strings.Contains(out, "secret") {
		t.Fatal("query string leaked into the log")
	}
}
