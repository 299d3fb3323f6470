// Package session is the client-side session store.  A Store owns the
// tokens and identity snapshot of one user, persists them, reconciles them
// with the server on startup and refreshes expired access tokens.
//
// Every transition bumps or checks a generation counter.  A network result
// is applied only when the generation has not moved since the call started,
// so a logout or login always wins over work still in flight.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/nurox-dashboard/internal/client"
	"github.com/iliyamo/nurox-dashboard/internal/guard"
	"github.com/iliyamo/nurox-dashboard/internal/model"
	"github.com/iliyamo/nurox-dashboard/internal/roles"
)

// DefaultTimeout bounds each network call made by the store.
const DefaultTimeout = 10 * time.Second

// State is the lifecycle of a Store.
type State int

const (
	Uninitialized State = iota
	Hydrating
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Hydrating:
		return "hydrating"
	case Ready:
		return "ready"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

var (
	ErrNotAuthenticated = errors.New("session: not authenticated")
	// ErrExpired is returned by Call when the server rejected the session
	// and it was purged.
	ErrExpired = errors.New("session: expired")
	// ErrSuperseded means a newer login or logout replaced the session
	// while the call was in flight.  Its result was discarded.
	ErrSuperseded = errors.New("session: superseded")

	errNoRefreshToken = errors.New("session: no refresh token")
	errCorrupt        = errors.New("session: persisted state is corrupt")
)

// API is the server surface the store uses.  *client.Client satisfies it.
type API interface {
	Login(ctx context.Context, email, password string) (client.LoginResult, error)
	Me(ctx context.Context, access string) (model.Identity, error)
	Logout(ctx context.Context, access string) error
	RefreshToken(ctx context.Context, refresh string) (client.RefreshResult, error)
}

// Notifier is the live notification connection.  *client.NotificationChannel
// satisfies it.
type Notifier interface {
	Connect(ctx context.Context, access string) error
	Disconnect()
}

// CookieWriter mirrors the access token into a cookie.  *client.JarCookies
// satisfies it.
type CookieWriter interface {
	SetAccessToken(tok string) error
	ClearAccessToken() error
}

// Options configures a Store.  API is required.
type Options struct {
	API      API
	KV       KV
	Notifier Notifier
	Cookies  CookieWriter
	Logger   zerolog.Logger
	// OnExpired runs once per session when Call finds it rejected by the
	// server.  It is the redirect-to-login hook.
	OnExpired func()
	Timeout   time.Duration
}

// Snapshot is what dashboard pages read.
type Snapshot struct {
	User          *model.Identity
	Authenticated bool
	Loading       bool
	// Verified is false while the cached identity has not been confirmed by
	// the server, including when the server was unreachable.
	Verified bool
	State    State
}

type Store struct {
	api       API
	kv        KV
	notifier  Notifier
	cookies   CookieWriter
	log       zerolog.Logger
	onExpired func()
	timeout   time.Duration

	mu             sync.Mutex
	state          State
	user           *model.Identity
	access         string
	refresh        string
	verified       bool
	gen            uint64
	hydrateStarted bool
	hydrated       chan struct{}
	subs           map[int]func(Snapshot)
	nextSub        int

	refreshes singleflight.Group
}

func New(opts Options) (*Store, error) {
	if opts.API == nil {
		return nil, errors.New("session: API is required")
	}
	s := &Store{
		api:       opts.API,
		kv:        opts.KV,
		notifier:  opts.Notifier,
		cookies:   opts.Cookies,
		log:       opts.Logger,
		onExpired: opts.OnExpired,
		timeout:   opts.Timeout,
		hydrated:  make(chan struct{}),
		subs:      map[int]func(Snapshot){},
	}
	if s.kv == nil {
		s.kv = NewMemoryKV()
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	return s, nil
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Authenticated: s.state == Ready && s.user != nil,
		Loading:       s.state != Ready,
		Verified:      s.verified,
		State:         s.state,
	}
	if s.user != nil {
		u := *s.user
		u.Permissions = append([]roles.Permission(nil), s.user.Permissions...)
		snap.User = &u
	}
	return snap
}

// Subscribe registers fn to receive a snapshot after every transition.  The
// returned func removes it.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) emit() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// HasPermission reports whether the signed-in user's role grants p.
func (s *Store) HasPermission(p roles.Permission) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Ready && s.user != nil && roles.HasPermission(s.user.Role, p)
}

// GuardState is the view the route guard decides on.
func (s *Store) GuardState() guard.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := guard.State{Ready: s.state == Ready, Authenticated: s.state == Ready && s.user != nil}
	if s.user != nil {
		st.Role = s.user.Role
	}
	return st
}

// AccessToken returns the current access token, or "" when signed out.
func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

// Login signs in and replaces any existing session, including one still
// hydrating.  Rejections are returned as *client.APIError and leave the
// store unchanged; an in-flight hydration then carries on.  Only a
// successful login moves the generation.
func (s *Store) Login(ctx context.Context, email, password string) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	res, err := s.api.Login(cctx, email, password)
	cancel()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		// a logout or another login landed first
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.gen++
	gen = s.gen
	user := res.User
	s.user, s.access, s.refresh = &user, res.AccessToken, res.RefreshToken
	s.verified = true
	s.state = Ready
	perr := s.persistLocked(true)
	s.mu.Unlock()

	if perr != nil {
		s.log.Warn().Err(perr).Msg("persist session failed")
	}
	s.log.Info().Str("user_id", user.ID).Str("role", user.Role.String()).Msg("signed in")
	s.emit()
	s.connect(ctx, gen, res.AccessToken)
	return nil
}

// Logout ends the session locally and then tells the server.  The server
// call is best effort; only local purge failures are returned.
func (s *Store) Logout(ctx context.Context) error {
	if s.notifier != nil {
		s.notifier.Disconnect()
	}

	s.mu.Lock()
	access := s.access
	err := s.purgeLocked()
	s.clearLocked()
	s.state = Ready
	s.gen++
	s.mu.Unlock()
	s.emit()

	if access != "" {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		if lerr := s.api.Logout(cctx, access); lerr != nil {
			s.log.Debug().Err(lerr).Msg("logout request failed")
		}
		cancel()
	}
	return err
}

// RefreshUser reloads the identity snapshot from the server.
func (s *Store) RefreshUser(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	var id model.Identity
	err := s.Call(ctx, func(ctx context.Context, access string) error {
		var err error
		id, err = s.api.Me(ctx, access)
		return err
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.user = &id
	s.verified = true
	perr := s.persistUserLocked()
	s.mu.Unlock()
	if perr != nil {
		s.log.Warn().Err(perr).Msg("persist identity failed")
	}
	s.emit()
	return nil
}

// Call runs an authenticated request with the current access token.  When
// the server answers 401 for an expired token, the store refreshes once,
// collapsing concurrent refreshes, and retries fn.  A final rejection purges
// the session, fires OnExpired and returns ErrExpired.  Network failures are
// returned as is and keep the session.
func (s *Store) Call(ctx context.Context, fn func(ctx context.Context, access string) error) error {
	s.mu.Lock()
	if s.state != Ready || s.user == nil || s.access == "" {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	gen, access := s.gen, s.access
	s.mu.Unlock()

	err := s.run(ctx, fn, access)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || !apiErr.Unauthorized() {
		return err
	}
	if apiErr.Refreshable() {
		fresh, rerr := s.refreshAccess(ctx, gen)
		switch {
		case rerr == nil:
			err = s.run(ctx, fn, fresh)
			if !errors.As(err, &apiErr) || !apiErr.Unauthorized() {
				return err
			}
		case errors.Is(rerr, ErrSuperseded):
			return ErrSuperseded
		case !rejected(rerr):
			return rerr
		default:
			err = rerr
		}
	}
	if !s.terminate(gen, true) {
		return ErrSuperseded
	}
	return fmt.Errorf("%w: %w", ErrExpired, err)
}

func (s *Store) run(ctx context.Context, fn func(context.Context, string) error, access string) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(cctx, access)
}

// refreshAccess exchanges the refresh token of generation gen.  Concurrent
// callers of the same generation share one request.
func (s *Store) refreshAccess(ctx context.Context, gen uint64) (string, error) {
	v, err, _ := s.refreshes.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return "", ErrSuperseded
		}
		refresh := s.refresh
		s.mu.Unlock()
		if refresh == "" {
			return "", errNoRefreshToken
		}

		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		res, err := s.api.RefreshToken(cctx, refresh)
		if err != nil {
			return "", err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return "", ErrSuperseded
		}
		s.access = res.AccessToken
		if err := s.kv.Set(map[string]string{KeyAccessToken: res.AccessToken}); err != nil {
			s.log.Warn().Err(err).Msg("persist refreshed token failed")
		}
		if s.cookies != nil {
			_ = s.cookies.SetAccessToken(res.AccessToken)
		}
		s.log.Debug().Msg("access token refreshed")
		return res.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// terminate purges generation gen.  It reports false when a newer
// transition already replaced it, which keeps OnExpired to one call per
// session.
func (s *Store) terminate(gen uint64, expired bool) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	if err := s.purgeLocked(); err != nil {
		s.log.Warn().Err(err).Msg("purge session failed")
	}
	s.clearLocked()
	s.state = Ready
	s.gen++
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.Disconnect()
	}
	s.log.Info().Bool("expired", expired).Msg("session ended by server")
	s.emit()
	if expired && s.onExpired != nil {
		s.onExpired()
	}
	return true
}

// connect opens the notification channel for generation gen.  A channel
// opened after the session moved on is closed again.
func (s *Store) connect(ctx context.Context, gen uint64, access string) {
	if s.notifier == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.notifier.Connect(cctx, access)
	cancel()
	if err != nil {
		s.log.Warn().Err(err).Msg("notification channel unavailable")
		return
	}
	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		s.notifier.Disconnect()
	}
}

func (s *Store) clearLocked() {
	s.user = nil
	s.access, s.refresh = "", ""
	s.verified = false
}

func (s *Store) purgeLocked() error {
	err := s.kv.Delete(KeyAccessToken, KeyRefreshToken, KeyUser)
	if s.cookies != nil {
		err = errors.Join(err, s.cookies.ClearAccessToken())
	}
	return err
}

func (s *Store) persistLocked(withCookie bool) error {
	b, err := json.Marshal(s.user)
	if err != nil {
		return err
	}
	err = s.kv.Set(map[string]string{
		KeyAccessToken:  s.access,
		KeyRefreshToken: s.refresh,
		KeyUser:         string(b),
	})
	if withCookie && s.cookies != nil {
		err = errors.Join(err, s.cookies.SetAccessToken(s.access))
	}
	return err
}

func (s *Store) persistUserLocked() error {
	b, err := json.Marshal(s.user)
	if err != nil {
		return err
	}
	return s.kv.Set(map[string]string{KeyUser: string(b)})
}

// rejected reports whether err means the server refused the session, as
// opposed to being unreachable.
func rejected(err error) bool {
	if errors.Is(err, errNoRefreshToken) {
		return true
	}
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized() && !errors.Is(err, client.ErrNetworkUnavailable)
}
