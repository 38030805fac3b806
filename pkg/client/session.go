// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// State is where a Session is in its login lifecycle.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Event moves a Session between states.
type Event int

const (
	LoginStarted Event = iota
	LoginSucceeded
	LoginFailed
	TokenExpired
	LoggedOut
)

func (e Event) String() string {
	switch e {
	case LoginStarted:
		return "login-started"
	case LoginSucceeded:
		return "login-succeeded"
	case LoginFailed:
		return "login-failed"
	case TokenExpired:
		return "token-expired"
	case LoggedOut:
		return "logged-out"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

var (
	ErrNotAuthenticated  = errors.New("client: not authenticated")
	ErrTokenExpired      = errors.New("client: token has expired")
	ErrInvalidTransition = errors.New("client: invalid session transition")
)

// transitions lists the allowed moves. LoggedOut is accepted from every state.
var transitions = map[State]map[Event]State{
	Anonymous: {
		LoginStarted: Authenticating,
	},
	Authenticating: {
		LoginSucceeded: Authenticated,
		LoginFailed:    Failed,
	},
	Authenticated: {
		LoginStarted: Authenticating,
		TokenExpired: Anonymous,
	},
	Failed: {
		LoginStarted: Authenticating,
	},
}

func next(from State, ev Event) (State, error) {
	if ev == LoggedOut {
		return Anonymous, nil
	}
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}

// Session holds the bearer token of one logged in user. It's safe for
// concurrent use and satisfies oauth2.TokenSource so it can back an
// oauth2.Transport directly.
type Session struct {
	mu sync.RWMutex

	state State
	token *oauth2.Token
	user  *User
	err   error

	now func() time.Time
}

func newSession() *Session {
	return &Session{state: Anonymous, now: time.Now}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User returns the account of an authenticated session, or nil.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Err returns why the last login failed.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Token implements oauth2.TokenSource. An expired token moves the session
// back to Anonymous.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Authenticated || s.token == nil {
		return nil, ErrNotAuthenticated
	}
	if !s.token.Expiry.IsZero() && !s.now().Before(s.token.Expiry) {
		s.fire(TokenExpired)
		return nil, ErrTokenExpired
	}
	tok := *s.token
	return &tok, nil
}

// fire applies ev and clears credentials whenever the session leaves
// Authenticated. Callers hold s.mu.
func (s *Session) fire(ev Event) error {
	to, err := next(s.state, ev)
	if err != nil {
		return err
	}
	s.state = to
	if to != Authenticated {
		s.token = nil
		s.user = nil
	}
	if to != Failed {
		s.err = nil
	}
	return nil
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fire(LoginStarted)
}

func (s *Session) fail(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fire(LoginFailed); err != nil {
		return err
	}
	s.err = cause
	return nil
}

func (s *Session) establish(raw string, user *User) error {
	expiry, err := tokenExpiry(raw)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fire(LoginSucceeded); err != nil {
		return err
	}
	s.token = &oauth2.Token{
		AccessToken: raw,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}
	s.user = user
	return nil
}

func (s *Session) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Authenticated {
		s.fire(TokenExpired)
	}
}

func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fire(LoggedOut)
}

// tokenExpiry reads exp from a session token without verifying it. The
// server remains the authority; this only lets us stop sending stale tokens.
func tokenExpiry(raw string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("client: reading token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
