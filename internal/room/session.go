package room

import (
	"context"
	"errors"
	"sync"

	"roomchat/internal/storage"
)

type SessionState int

const (
	StateAnonymous SessionState = iota
	StateAuthenticated
	StateSubscribed
	StateClosed
)

var (
	ErrAlreadyAuthenticated = errors.New("session is already authenticated")
	ErrAlreadySubscribed    = errors.New("session is already subscribed")
	ErrNotAuthenticated     = errors.New("session is not authenticated")
	ErrNotSubscribed        = errors.New("session is not subscribed")
	ErrSessionClosed        = errors.New("session is closed")
)

// Credentials verifies a login attempt. Implemented by auth.Service.
type Credentials interface {
	Verify(ctx context.Context, username, password string) error
}

// Session tracks one connected client through the
// Anonymous -> Authenticated -> Subscribed -> Closed lifecycle
type Session struct {
	mu       sync.Mutex
	state    SessionState
	username string
	room     *Room
	creds    Credentials
	sub      *Subscription
}

func NewSession(r *Room, creds Credentials) *Session {
	return &Session{
		state: StateAnonymous,
		room:  r,
		creds: creds,
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Login verifies credentials and moves the session to Authenticated.
// On verification failure the state stays Anonymous and the failure kind is
// surfaced to the caller.
func (s *Session) Login(ctx context.Context, username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateAuthenticated, StateSubscribed:
		return ErrAlreadyAuthenticated
	}

	if err := s.creds.Verify(ctx, username, password); err != nil {
		return err
	}

	s.username = username
	s.state = StateAuthenticated

	return nil
}

// Join subscribes the session to the room and returns the initial snapshot
func (s *Session) Join(ctx context.Context) ([]storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return nil, ErrSessionClosed
	case StateAnonymous:
		return nil, ErrNotAuthenticated
	case StateSubscribed:
		return nil, ErrAlreadySubscribed
	}

	sub, snapshot, err := s.room.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	s.sub = sub
	s.state = StateSubscribed

	return snapshot, nil
}

// Send posts a message to the room under the session identity
func (s *Session) Send(ctx context.Context, body string) (storage.Message, error) {
	s.mu.Lock()
	if s.state != StateSubscribed {
		s.mu.Unlock()
		return storage.Message{}, ErrNotSubscribed
	}
	username := s.username
	s.mu.Unlock()

	return s.room.Send(ctx, username, body)
}

// Clear wipes the room history. Available to any subscribed client;
// authorization is out of scope.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateSubscribed {
		s.mu.Unlock()
		return ErrNotSubscribed
	}
	s.mu.Unlock()

	return s.room.Clear(ctx)
}

// Events returns the live event stream, nil unless subscribed
func (s *Session) Events() <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub == nil {
		return nil
	}
	return s.sub.Events()
}

// Lagged reports whether the subscription dropped events and needs Resync
func (s *Session) Lagged() bool {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()

	return sub != nil && sub.Lagged()
}

// Resync refetches the room history after a lag, returning the fresh
// snapshot to replace the client view
func (s *Session) Resync(ctx context.Context) ([]storage.Message, error) {
	s.mu.Lock()
	if s.state != StateSubscribed {
		s.mu.Unlock()
		return nil, ErrNotSubscribed
	}
	sub := s.sub
	s.mu.Unlock()

	return s.room.Resync(ctx, sub)
}

// Disconnect closes the session from any state. Idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
	s.state = StateClosed
}
