package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/nurox-dashboard/internal/client"
	"github.com/iliyamo/nurox-dashboard/internal/model"
)

// Hydrate restores the persisted session.  A cached identity is served
// right away as an unverified authenticated session, then confirmed with
// the server in the background.  The returned channel closes when that
// confirmation is over.  Calling Hydrate again returns the same channel.
//
// A token the server rejects purges the session.  An unreachable server
// leaves the cached identity in place, unverified.
func (s *Store) Hydrate(ctx context.Context) <-chan struct{} {
	s.mu.Lock()
	done := s.hydrated
	if s.hydrateStarted {
		s.mu.Unlock()
		return done
	}
	s.hydrateStarted = true
	if s.state != Uninitialized {
		// a login or logout got here first
		s.mu.Unlock()
		close(done)
		return done
	}
	s.state = Hydrating
	gen := s.gen
	s.mu.Unlock()
	s.emit()

	access, refresh, user, err := s.readPersisted()

	s.mu.Lock()
	if s.gen != gen {
		if s.state == Hydrating {
			s.clearLocked()
			s.state = Ready
		}
		s.mu.Unlock()
		s.emit()
		close(done)
		return done
	}
	if err != nil || access == "" {
		if err != nil {
			s.log.Warn().Err(err).Msg("discarding persisted session")
			if perr := s.purgeLocked(); perr != nil {
				s.log.Warn().Err(perr).Msg("purge session failed")
			}
		}
		s.clearLocked()
		s.state = Ready
		s.mu.Unlock()
		s.emit()
		close(done)
		return done
	}
	s.user, s.access, s.refresh = &user, access, refresh
	s.verified = false
	s.state = Ready
	if s.cookies != nil {
		_ = s.cookies.SetAccessToken(access)
	}
	s.mu.Unlock()
	s.emit()

	go func() {
		defer close(done)
		s.verify(ctx, gen)
	}()
	return done
}

// readPersisted loads the stored tokens and identity.  Nothing stored is
// not an error; a partial or unreadable record is.
func (s *Store) readPersisted() (access, refresh string, user model.Identity, err error) {
	access, hasAccess, err := s.kv.Get(KeyAccessToken)
	if err != nil {
		return "", "", user, err
	}
	raw, hasUser, err := s.kv.Get(KeyUser)
	if err != nil {
		return "", "", user, err
	}
	if !hasAccess && !hasUser {
		return "", "", user, nil
	}
	if access == "" || raw == "" {
		return "", "", user, errCorrupt
	}
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return "", "", user, fmt.Errorf("%w: %w", errCorrupt, err)
	}
	if !user.Valid() {
		return "", "", user, errCorrupt
	}
	refresh, _, err = s.kv.Get(KeyRefreshToken)
	if err != nil {
		return "", "", user, err
	}
	return access, refresh, user, nil
}

// verify confirms generation gen with the server, refreshing once when the
// access token expired.
func (s *Store) verify(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	access := s.access
	s.mu.Unlock()

	id, err := s.me(ctx, access)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Refreshable() {
		var fresh string
		if fresh, err = s.refreshAccess(ctx, gen); err == nil {
			access = fresh
			id, err = s.me(ctx, fresh)
		}
	}

	switch {
	case err == nil:
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.user = &id
		s.verified = true
		perr := s.persistUserLocked()
		s.mu.Unlock()
		if perr != nil {
			s.log.Warn().Err(perr).Msg("persist identity failed")
		}
		s.emit()
		s.connect(ctx, gen, access)
	case errors.Is(err, ErrSuperseded):
	case rejected(err):
		s.log.Info().Err(err).Msg("persisted session rejected")
		s.terminate(gen, false)
	default:
		s.log.Warn().Err(err).Msg("session left unverified")
	}
}

func (s *Store) me(ctx context.Context, access string) (model.Identity, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.api.Me(cctx, access)
}
