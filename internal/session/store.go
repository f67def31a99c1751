// Package session owns the authentication token and the current user. Store
// operations are the only writers of the token; everything else reads it
// through Token.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/zulandar/product-assistant/internal/api"
	"github.com/zulandar/product-assistant/internal/errx"
	"github.com/zulandar/product-assistant/internal/logx"
	"golang.org/x/oauth2"
)

// AuthAPI is the slice of the backend the store talks to.
type AuthAPI interface {
	Register(ctx context.Context, email, password string) error
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
	Me(ctx context.Context, token string) (*api.User, error)
}

// Store holds the session. The user is set only while a validated token is
// held; losing the token always drops the user with it.
type Store struct {
	auth   AuthAPI
	tokens TokenStore

	mu        sync.RWMutex
	token     string
	user      *api.User
	loading   bool
	listeners []func(authenticated bool)
}

// NewStore creates a Store. It reports IsLoading until Restore completes.
func NewStore(auth AuthAPI, tokens TokenStore) *Store {
	return &Store{auth: auth, tokens: tokens, loading: true}
}

// OnChange registers fn to be called whenever the session flips between
// authenticated and unauthenticated.
func (s *Store) OnChange(fn func(authenticated bool)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Restore validates a persisted token against /auth/me. Any failure clears
// the stored token without surfacing an error.
func (s *Store) Restore(ctx context.Context) bool {
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	token, err := s.tokens.Load()
	if err != nil {
		logx.Warn().Err(err).Msg("session: could not read stored token")
		return false
	}
	if token == "" {
		return false
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	user, err := s.auth.Me(ctx, token)
	if err != nil {
		logx.Info().Err(err).Msg("session: stored token rejected, clearing")
		s.clearIfHeld(token)
		return false
	}
	return s.setIfHeld(token, user)
}

// Login submits credentials, persists the returned token and sets the user.
func (s *Store) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return fmt.Errorf("session: email and password are required")
	}

	resp, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("session: login: %w", err)
	}
	if err := s.tokens.Save(resp.Token); err != nil {
		return fmt.Errorf("session: login: %w", err)
	}
	user := resp.User
	s.set(resp.Token, &user)
	logx.Info().Str("user", user.Email).Msg("session: logged in")
	return nil
}

// Register creates the account and then logs in with the same credentials.
func (s *Store) Register(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return fmt.Errorf("session: email and password are required")
	}
	if err := s.auth.Register(ctx, email, password); err != nil {
		return fmt.Errorf("session: register: %w", err)
	}
	return s.Login(ctx, email, password)
}

// Logout drops the session. No backend call is made.
func (s *Store) Logout() {
	s.clear()
	logx.Info().Msg("session: logged out")
}

// Invalidate drops the session after the backend rejected the token.
func (s *Store) Invalidate() {
	s.clear()
	logx.Info().Msg("session: token invalidated")
}

// Revalidate re-checks the held token. A rejected token invalidates the
// session and returns errx.ErrUnauthorized; transport failures leave the
// session as it is. The result is applied only if the same token is still
// held when the backend answers, so a logout or a new login made meanwhile
// wins.
func (s *Store) Revalidate(ctx context.Context) error {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return errx.ErrUnauthorized
	}

	user, err := s.auth.Me(ctx, token)
	if err != nil {
		if errx.IsAuth(err) {
			if s.clearIfHeld(token) {
				logx.Info().Msg("session: token invalidated")
			}
			return errx.ErrUnauthorized
		}
		return fmt.Errorf("session: revalidate: %w", err)
	}
	if !s.setIfHeld(token, user) {
		logx.Debug().Msg("session: revalidated token no longer held")
	}
	return nil
}

// Token implements oauth2.TokenSource. Without a token it returns
// errx.ErrUnauthorized so protected requests are never sent.
func (s *Store) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return nil, errx.ErrUnauthorized
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

// CurrentUser returns a copy of the validated user, or nil.
func (s *Store) CurrentUser() *api.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsAuthenticated reports whether a validated session is held.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// IsLoading reports whether the startup validation is still running.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) set(token string, user *api.User) {
	s.mu.Lock()
	was := s.user != nil
	s.token = token
	s.user = user
	listeners := s.listeners
	s.mu.Unlock()

	if !was {
		notify(listeners, true)
	}
}

func (s *Store) clear() {
	if err := s.tokens.Clear(); err != nil {
		logx.Warn().Err(err).Msg("session: could not clear stored token")
	}

	s.mu.Lock()
	was := s.user != nil
	s.token = ""
	s.user = nil
	listeners := s.listeners
	s.mu.Unlock()

	if was {
		notify(listeners, false)
	}
}

// setIfHeld installs user while token is still the held token and reports
// whether it did.
func (s *Store) setIfHeld(token string, user *api.User) bool {
	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return false
	}
	was := s.user != nil
	s.user = user
	listeners := s.listeners
	s.mu.Unlock()

	if !was {
		notify(listeners, true)
	}
	return true
}

// clearIfHeld drops the session while token is still the held token and
// reports whether it did. The stored token is cleared under the lock.
func (s *Store) clearIfHeld(token string) bool {
	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return false
	}
	if err := s.tokens.Clear(); err != nil {
		logx.Warn().Err(err).Msg("session: could not clear stored token")
	}
	was := s.user != nil
	s.token = ""
	s.user = nil
	listeners := s.listeners
	s.mu.Unlock()

	if was {
		notify(listeners, false)
	}
	return true
}

func notify(listeners []func(bool), authenticated bool) {
	for _, fn := range listeners {
		fn(authenticated)
	}
}

var _ oauth2.TokenSource = (*Store)(nil)
