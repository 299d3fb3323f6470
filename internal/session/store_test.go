package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/nurox-dashboard/internal/client"
	"github.com/iliyamo/nurox-dashboard/internal/guard"
	"github.com/iliyamo/nurox-dashboard/internal/model"
	"github.com/iliyamo/nurox-dashboard/internal/roles"
	"github.com/iliyamo/nurox-dashboard/internal/token"
)

func identity(id string, r roles.Role) model.Identity {
	return model.NewIdentity(model.Account{ID: id, Email: id + "@nurox.com", FirstName: "Test", Role: r, IsActive: true})
}

func unauthorized(code string) error {
	return &client.APIError{Status: http.StatusUnauthorized, Code: code}
}

type fakeAPI struct {
	login   func(ctx context.Context, email, password string) (client.LoginResult, error)
	me      func(ctx context.Context, access string) (model.Identity, error)
	refresh func(ctx context.Context, refresh string) (client.RefreshResult, error)

	meCalls      atomic.Int32
	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
}

func (f *fakeAPI) Login(ctx context.Context, email, password string) (client.LoginResult, error) {
	return f.login(ctx, email, password)
}

func (f *fakeAPI) Me(ctx context.Context, access string) (model.Identity, error) {
	f.meCalls.Add(1)
	return f.me(ctx, access)
}

func (f *fakeAPI) Logout(context.Context, string) error {
	f.logoutCalls.Add(1)
	return nil
}

func (f *fakeAPI) RefreshToken(ctx context.Context, refresh string) (client.RefreshResult, error) {
	f.refreshCalls.Add(1)
	return f.refresh(ctx, refresh)
}

type fakeNotifier struct {
	connects    atomic.Int32
	disconnects atomic.Int32
}

func (n *fakeNotifier) Connect(context.Context, string) error {
	n.connects.Add(1)
	return nil
}

func (n *fakeNotifier) Disconnect() { n.disconnects.Add(1) }

type fakeCookies struct {
	mu    sync.Mutex
	value string
}

func (c *fakeCookies) SetAccessToken(tok string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = tok
	return nil
}

func (c *fakeCookies) ClearAccessToken() error { return c.SetAccessToken("") }

func (c *fakeCookies) get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

type harness struct {
	store    *Store
	api      *fakeAPI
	kv       *MemoryKV
	notifier *fakeNotifier
	cookies  *fakeCookies
	expired  atomic.Int32
}

func newHarness(t *testing.T, api *fakeAPI) *harness {
	t.Helper()
	h := &harness{api: api, kv: NewMemoryKV(), notifier: &fakeNotifier{}, cookies: &fakeCookies{}}
	s, err := New(Options{
		API:       api,
		KV:        h.kv,
		Notifier:  h.notifier,
		Cookies:   h.cookies,
		OnExpired: func() { h.expired.Add(1) },
		Timeout:   time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.store = s
	return h
}

func (h *harness) persist(t *testing.T, access, refresh string, id model.Identity) {
	t.Helper()
	b, err := json.Marshal(id)
	if err != nil {
		t.Fatal(err)
	}
	_ = h.kv.Set(map[string]string{KeyAccessToken: access, KeyRefreshToken: refresh, KeyUser: string(b)})
}

func (h *harness) persisted(key string) string {
	v, _, _ := h.kv.Get(key)
	return v
}

func wait(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for hydration")
	}
}

func TestNewRequiresAPI(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without API")
	}
}

func TestHydrateWithNothingPersisted(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	if snap := h.store.Snapshot(); !snap.Loading || snap.State != Uninitialized {
		t.Fatalf("fresh store: %+v", snap)
	}
	wait(t, h.store.Hydrate(context.Background()))
	snap := h.store.Snapshot()
	if snap.Authenticated || snap.Loading || snap.State != Ready {
		t.Fatalf("got %+v", snap)
	}
	if h.api.meCalls.Load() != 0 {
		t.Fatal("nothing persisted, nothing to verify")
	}
}

func TestHydrateCorruptStatePurges(t *testing.T) {
	tests := map[string]map[string]string{
		"bad json":      {KeyAccessToken: "a.b.c", KeyUser: "{"},
		"missing role":  {KeyAccessToken: "a.b.c", KeyUser: `{"id":"u","email":"u@nurox.com"}`},
		"user no token": {KeyUser: `{"id":"u","email":"u@nurox.com","role":"DOCTOR"}`},
		"token no user": {KeyAccessToken: "a.b.c", KeyRefreshToken: "r.s.t"},
	}
	for name, stored := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, &fakeAPI{})
			_ = h.kv.Set(stored)
			wait(t, h.store.Hydrate(context.Background()))
			if h.store.Snapshot().Authenticated {
				t.Fatal("corrupt state must not authenticate")
			}
			for _, k := range []string{KeyAccessToken, KeyRefreshToken, KeyUser} {
				if _, ok, _ := h.kv.Get(k); ok {
					t.Fatalf("%s not purged", k)
				}
			}
		})
	}
}

func TestHydrateIsOptimisticThenVerified(t *testing.T) {
	release := make(chan struct{})
	fresh := identity("doc-1", roles.RoleDoctor)
	fresh.FirstName = "Updated"
	api := &fakeAPI{me: func(ctx context.Context, access string) (model.Identity, error) {
		<-release
		return fresh, nil
	}}
	h := newHarness(t, api)
	h.persist(t, "a.b.c", "r.s.t", identity("doc-1", roles.RoleDoctor))

	done := h.store.Hydrate(context.Background())
	snap := h.store.Snapshot()
	if !snap.Authenticated || snap.Loading || snap.Verified {
		t.Fatalf("expected optimistic unverified session, got %+v", snap)
	}
	if h.cookies.get() != "a.b.c" {
		t.Fatal("access token not mirrored to cookie")
	}
	if again := h.store.Hydrate(context.Background()); again != done {
		t.Fatal("second Hydrate must return the same channel")
	}

	close(release)
	wait(t, done)
	snap = h.store.Snapshot()
	if !snap.Verified || snap.User.FirstName != "Updated" {
		t.Fatalf("expected verified fresh identity, got %+v", snap)
	}
	if h.notifier.connects.Load() != 1 {
		t.Fatal("notification channel not opened after verification")
	}
}

func TestHydrateLegacyTokenPurgesWithoutRefresh(t *testing.T) {
	api := &fakeAPI{
		me: func(context.Context, string) (model.Identity, error) { return model.Identity{}, unauthorized(token.CodeLegacy) },
		refresh: func(context.Context, string) (client.RefreshResult, error) {
			return client.RefreshResult{}, errors.New("must not be called")
		},
	}
	h := newHarness(t, api)
	h.persist(t, "access_token_123", "r.s.t", identity("doc-1", roles.RoleDoctor))

	wait(t, h.store.Hydrate(context.Background()))
	if h.store.Snapshot().Authenticated {
		t.Fatal("legacy token must end the session")
	}
	if h.api.refreshCalls.Load() != 0 {
		t.Fatal("legacy token must not be refreshed")
	}
	if h.persisted(KeyAccessToken) != "" || h.cookies.get() != "" {
		t.Fatal("session not purged")
	}
	if h.expired.Load() != 0 {
		t.Fatal("hydration rejection is not an in-session expiry")
	}
}

func TestHydrateExpiredTokenRefreshes(t *testing.T) {
	api := &fakeAPI{
		me: func(_ context.Context, access string) (model.Identity, error) {
			if access != "new.access.token" {
				return model.Identity{}, unauthorized(token.CodeExpired)
			}
			return identity("doc-1", roles.RoleDoctor), nil
		},
		refresh: func(_ context.Context, refresh string) (client.RefreshResult, error) {
			if refresh != "r.s.t" {
				return client.RefreshResult{}, unauthorized(token.CodeInvalid)
			}
			return client.RefreshResult{AccessToken: "new.access.token"}, nil
		},
	}
	h := newHarness(t, api)
	h.persist(t, "old.access.token", "r.s.t", identity("doc-1", roles.RoleDoctor))

	wait(t, h.store.Hydrate(context.Background()))
	snap := h.store.Snapshot()
	if !snap.Authenticated || !snap.Verified {
		t.Fatalf("got %+v", snap)
	}
	if h.persisted(KeyAccessToken) != "new.access.token" || h.cookies.get() != "new.access.token" {
		t.Fatal("refreshed token not persisted")
	}
}

func TestHydrateNetworkFailureKeepsSession(t *testing.T) {
	api := &fakeAPI{me: func(context.Context, string) (model.Identity, error) {
		return model.Identity{}, client.ErrNetworkUnavailable
	}}
	h := newHarness(t, api)
	h.persist(t, "a.b.c", "r.s.t", identity("doc-1", roles.RoleDoctor))

	wait(t, h.store.Hydrate(context.Background()))
	snap := h.store.Snapshot()
	if !snap.Authenticated || snap.Verified {
		t.Fatalf("expected unverified cached session, got %+v", snap)
	}
	if h.persisted(KeyAccessToken) != "a.b.c" {
		t.Fatal("network failure must not purge")
	}
}

func TestHydrateTimeoutKeepsSession(t *testing.T) {
	api := &fakeAPI{me: func(ctx context.Context, _ string) (model.Identity, error) {
		<-ctx.Done()
		return model.Identity{}, ctx.Err()
	}}
	h := newHarness(t, api)
	h.store.timeout = 20 * time.Millisecond
	h.persist(t, "a.b.c", "r.s.t", identity("doc-1", roles.RoleDoctor))

	wait(t, h.store.Hydrate(context.Background()))
	if snap := h.store.Snapshot(); !snap.Authenticated || snap.Verified {
		t.Fatalf("expected unverified cached session, got %+v", snap)
	}
}

func TestLoginBeatsInFlightHydration(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		me: func(context.Context, string) (model.Identity, error) {
			<-release
			return identity("old-user", roles.RoleDoctor), nil
		},
		login: func(context.Context, string, string) (client.LoginResult, error) {
			return client.LoginResult{User: identity("new-user", roles.RolePharmacist), AccessToken: "n.e.w", RefreshToken: "r.e.f"}, nil
		},
	}
	h := newHarness(t, api)
	h.persist(t, "o.l.d", "r.s.t", identity("old-user", roles.RoleDoctor))

	done := h.store.Hydrate(context.Background())
	if err := h.store.Login(context.Background(), "new@nurox.com", "pw"); err != nil {
		t.Fatal(err)
	}
	close(release)
	wait(t, done)

	snap := h.store.Snapshot()
	if snap.User == nil || snap.User.ID != "new-user" || !snap.Verified {
		t.Fatalf("hydration clobbered login: %+v", snap)
	}
	if h.persisted(KeyAccessToken) != "n.e.w" {
		t.Fatal("login tokens overwritten")
	}
}

// gatedKV blocks the first Get until release is closed.
type gatedKV struct {
	*MemoryKV
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (k *gatedKV) Get(key string) (string, bool, error) {
	k.once.Do(func() {
		close(k.entered)
		<-k.release
	})
	return k.MemoryKV.Get(key)
}

func TestRejectedLoginDuringHydrateRead(t *testing.T) {
	api := &fakeAPI{
		me: func(context.Context, string) (model.Identity, error) {
			return identity("doc-1", roles.RoleDoctor), nil
		},
		login: func(context.Context, string, string) (client.LoginResult, error) {
			return client.LoginResult{}, unauthorized("invalid_credentials")
		},
	}
	h := newHarness(t, api)
	h.persist(t, "a.b.c", "r.s.t", identity("doc-1", roles.RoleDoctor))
	kv := &gatedKV{MemoryKV: h.kv, entered: make(chan struct{}), release: make(chan struct{})}
	h.store.kv = kv

	hydrating := make(chan (<-chan struct{}), 1)
	go func() { hydrating <- h.store.Hydrate(context.Background()) }()
	<-kv.entered

	var apiErr *client.APIError
	if err := h.store.Login(context.Background(), "doc@nurox.com", "wrong"); !errors.As(err, &apiErr) {
		t.Fatalf("expected rejection, got %v", err)
	}
	close(kv.release)
	wait(t, <-hydrating)

	snap := h.store.Snapshot()
	if snap.State != Ready || snap.Loading {
		t.Fatalf("store left in %s", snap.State)
	}
	if !snap.Authenticated || !snap.Verified {
		t.Fatalf("persisted session lost to a rejected login: %+v", snap)
	}
	if d := guard.Decide(h.store.GuardState(), "doctor"); d.Action != guard.Render {
		t.Fatalf("guard = %s", d.Action)
	}
	if h.notifier.connects.Load() != 1 {
		t.Fatal("notification channel not opened")
	}
}

func TestRejectedLoginDuringVerify(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{
		me: func(context.Context, string) (model.Identity, error) {
			close(started)
			<-release
			return model.Identity{}, unauthorized(token.CodeLegacy)
		},
		login: func(context.Context, string, string) (client.LoginResult, error) {
			return client.LoginResult{}, unauthorized("invalid_credentials")
		},
	}
	h := newHarness(t, api)
	h.persist(t, "access_token_9", "r.s.t", identity("doc-1", roles.RoleDoctor))

	done := h.store.Hydrate(context.Background())
	<-started
	if err := h.store.Login(context.Background(), "doc@nurox.com", "wrong"); err == nil {
		t.Fatal("expected rejection")
	}
	close(release)
	wait(t, done)

	if h.store.Snapshot().Authenticated {
		t.Fatal("rejected persisted session survived")
	}
	if h.persisted(KeyAccessToken) != "" || h.cookies.get() != "" {
		t.Fatal("session not purged")
	}
}

func TestLoginBeforeHydrate(t *testing.T) {
	api := &fakeAPI{login: func(context.Context, string, string) (client.LoginResult, error) {
		return client.LoginResult{User: identity("doc-1", roles.RoleDoctor), AccessToken: "a.b.c"}, nil
	}}
	h := newHarness(t, api)
	if err := h.store.Login(context.Background(), "doc@nurox.com", "pw"); err != nil {
		t.Fatal(err)
	}
	wait(t, h.store.Hydrate(context.Background()))
	if !h.store.Snapshot().Authenticated {
		t.Fatal("Hydrate after login must not reset the session")
	}
}

func TestLoginRejectedLeavesNoSession(t *testing.T) {
	api := &fakeAPI{login: func(context.Context, string, string) (client.LoginResult, error) {
		return client.LoginResult{}, &client.APIError{Status: 401, Code: "mobile_only_role", RequiresMobileApp: true, Role: roles.RolePatient}
	}}
	h := newHarness(t, api)
	wait(t, h.store.Hydrate(context.Background()))

	err := h.store.Login(context.Background(), "patient@nurox.com", "pw")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || !apiErr.RequiresMobileApp {
		t.Fatalf("expected mobile-only rejection, got %v", err)
	}
	if h.store.Snapshot().Authenticated || h.persisted(KeyAccessToken) != "" {
		t.Fatal("rejected login must not create a session")
	}
}

func TestLogout(t *testing.T) {
	api := &fakeAPI{login: func(context.Context, string, string) (client.LoginResult, error) {
		return client.LoginResult{User: identity("doc-1", roles.RoleDoctor), AccessToken: "a.b.c", RefreshToken: "r.s.t"}, nil
	}}
	h := newHarness(t, api)
	var snaps []Snapshot
	unsubscribe := h.store.Subscribe(func(s Snapshot) { snaps = append(snaps, s) })
	defer unsubscribe()

	if err := h.store.Login(context.Background(), "doc@nurox.com", "pw"); err != nil {
		t.Fatal(err)
	}
	if !h.store.HasPermission(roles.PermCreatePrescriptions) {
		t.Fatal("doctor should hold create_prescriptions")
	}
	if err := h.store.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}

	snap := h.store.Snapshot()
	if snap.Authenticated || snap.Loading || h.store.HasPermission(roles.PermCreatePrescriptions) {
		t.Fatalf("got %+v", snap)
	}
	if h.persisted(KeyAccessToken) != "" || h.persisted(KeyUser) != "" || h.cookies.get() != "" {
		t.Fatal("persisted state not purged")
	}
	if h.notifier.disconnects.Load() != 1 || h.api.logoutCalls.Load() != 1 {
		t.Fatal("logout must disconnect and notify the server")
	}
	if len(snaps) < 2 || snaps[len(snaps)-1].Authenticated {
		t.Fatalf("subscribers saw %+v", snaps)
	}
}

func TestRefreshUserIsIdempotent(t *testing.T) {
	api := &fakeAPI{
		login: func(context.Context, string, string) (client.LoginResult, error) {
			return client.LoginResult{User: identity("doc-1", roles.RoleDoctor), AccessToken: "a.b.c"}, nil
		},
		me: func(context.Context, string) (model.Identity, error) {
			id := identity("doc-1", roles.RoleDoctor)
			id.Phone = "+94 11 000 0000"
			return id, nil
		},
	}
	h := newHarness(t, api)
	if err := h.store.Login(context.Background(), "doc@nurox.com", "pw"); err != nil {
		t.Fatal(err)
	}
	if err := h.store.RefreshUser(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := h.store.Snapshot()
	if err := h.store.RefreshUser(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := h.store.Snapshot()

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) || first.User.Phone == "" {
		t.Fatalf("snapshots differ:\n%s\n%s", a, b)
	}
}

func TestRefreshUserRequiresSession(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	wait(t, h.store.Hydrate(context.Background()))
	if err := h.store.RefreshUser(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("got %v", err)
	}
}

func loggedIn(t *testing.T, api *fakeAPI) *harness {
	t.Helper()
	api.login = func(context.Context, string, string) (client.LoginResult, error) {
		return client.LoginResult{User: identity("doc-1", roles.RoleDoctor), AccessToken: "old.access.token", RefreshToken: "r.s.t"}, nil
	}
	h := newHarness(t, api)
	if err := h.store.Login(context.Background(), "doc@nurox.com", "pw"); err != nil {
		t.Fatal(err)
	}
	return h
}

func TestCallRefreshesAndRetries(t *testing.T) {
	api := &fakeAPI{refresh: func(context.Context, string) (client.RefreshResult, error) {
		return client.RefreshResult{AccessToken: "new.access.token"}, nil
	}}
	h := loggedIn(t, api)

	var seen []string
	err := h.store.Call(context.Background(), func(_ context.Context, access string) error {
		seen = append(seen, access)
		if access == "old.access.token" {
			return unauthorized(token.CodeExpired)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[1] != "new.access.token" {
		t.Fatalf("calls: %v", seen)
	}
	if h.store.AccessToken() != "new.access.token" || h.expired.Load() != 0 {
		t.Fatal("refresh not applied")
	}
}

func TestCallRefreshFailureExpiresOnce(t *testing.T) {
	api := &fakeAPI{refresh: func(context.Context, string) (client.RefreshResult, error) {
		return client.RefreshResult{}, unauthorized(token.CodeExpired)
	}}
	h := loggedIn(t, api)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.store.Call(context.Background(), func(context.Context, string) error {
				return unauthorized(token.CodeExpired)
			})
		}(i)
	}
	wg.Wait()

	if got := h.expired.Load(); got != 1 {
		t.Fatalf("OnExpired fired %d times", got)
	}
	expired := 0
	for _, err := range errs {
		switch {
		case errors.Is(err, ErrExpired):
			expired++
		case errors.Is(err, ErrSuperseded), errors.Is(err, ErrNotAuthenticated):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if expired != 1 {
		t.Fatalf("%d calls reported expiry", expired)
	}
	if h.store.Snapshot().Authenticated || h.persisted(KeyRefreshToken) != "" {
		t.Fatal("session not purged")
	}
}

func TestConcurrentCallsShareOneRefresh(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{refresh: func(context.Context, string) (client.RefreshResult, error) {
		<-release
		return client.RefreshResult{AccessToken: "new.access.token"}, nil
	}}
	h := loggedIn(t, api)

	const n = 5
	var first atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.store.Call(context.Background(), func(_ context.Context, access string) error {
				if access == "old.access.token" {
					first.Add(1)
					return unauthorized(token.CodeExpired)
				}
				return nil
			})
		}()
	}
	deadline := time.Now().Add(2 * time.Second)
	for first.Load() < n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := h.api.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh called %d times", got)
	}
}

func TestLogoutWinsOverInFlightRefresh(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{refresh: func(context.Context, string) (client.RefreshResult, error) {
		close(started)
		<-release
		return client.RefreshResult{AccessToken: "late.access.token"}, nil
	}}
	h := loggedIn(t, api)

	result := make(chan error, 1)
	go func() {
		result <- h.store.Call(context.Background(), func(_ context.Context, access string) error {
			return unauthorized(token.CodeExpired)
		})
	}()
	<-started
	if err := h.store.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}
	close(release)

	if err := <-result; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("got %v", err)
	}
	if h.store.AccessToken() != "" || h.persisted(KeyAccessToken) != "" {
		t.Fatal("late refresh resurrected the session")
	}
	if h.expired.Load() != 0 {
		t.Fatal("explicit logout is not an expiry")
	}
}

func TestCallNetworkFailureKeepsSession(t *testing.T) {
	api := &fakeAPI{refresh: func(context.Context, string) (client.RefreshResult, error) {
		return client.RefreshResult{}, client.ErrNetworkUnavailable
	}}
	h := loggedIn(t, api)
	err := h.store.Call(context.Background(), func(context.Context, string) error {
		return unauthorized(token.CodeExpired)
	})
	if !errors.Is(err, client.ErrNetworkUnavailable) {
		t.Fatalf("got %v", err)
	}
	if !h.store.Snapshot().Authenticated || h.expired.Load() != 0 {
		t.Fatal("network failure must keep the session")
	}
}

func TestCallLegacyTokenExpiresWithoutRefresh(t *testing.T) {
	h := loggedIn(t, &fakeAPI{})
	err := h.store.Call(context.Background(), func(context.Context, string) error {
		return unauthorized(token.CodeLegacy)
	})
	if !errors.Is(err, ErrExpired) || h.api.refreshCalls.Load() != 0 || h.expired.Load() != 1 {
		t.Fatalf("got %v, refreshes %d", err, h.api.refreshCalls.Load())
	}
}

func TestGuardForcesMobileOnlyLogout(t *testing.T) {
	api := &fakeAPI{me: func(context.Context, string) (model.Identity, error) {
		return identity("pat-1", roles.RolePatient), nil
	}}
	h := newHarness(t, api)
	h.persist(t, "a.b.c", "r.s.t", identity("pat-1", roles.RolePatient))
	wait(t, h.store.Hydrate(context.Background()))

	d, err := guard.Enforce(context.Background(), h.store, "/dashboard/doctor")
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != guard.ForceLogout || d.Delay != guard.ForceLogoutDelay {
		t.Fatalf("got %+v", d)
	}
	if h.store.Snapshot().Authenticated {
		t.Fatal("mobile-only session must be logged out")
	}
	if again := guard.Decide(h.store.GuardState(), "doctor"); again.Action != guard.RedirectLogin {
		t.Fatalf("after forced logout got %v", again.Action)
	}
}

func TestGuardRendersDoctorDashboard(t *testing.T) {
	h := loggedIn(t, &fakeAPI{})
	if d := guard.Decide(h.store.GuardState(), "doctor"); d.Action != guard.Render {
		t.Fatalf("got %v", d.Action)
	}
	d := guard.Decide(h.store.GuardState(), "admin")
	if d.Action != guard.RedirectRole || d.Target != "/dashboard/doctor" {
		t.Fatalf("got %+v", d)
	}
}

func TestGuardWaitsForHydration(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	if d := guard.Decide(h.store.GuardState(), "doctor"); d.Action != guard.Loading {
		t.Fatalf("got %v", d.Action)
	}
}

func TestStateString(t *testing.T) {
	if Hydrating.String() != "hydrating" || State(9).String() != "state(9)" {
		t.Fatal("unexpected state names")
	}
}
