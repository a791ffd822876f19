package room

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCredentials struct {
	password string
}

var errWrongPassword = errors.New("wrong password")

func (c fakeCredentials) Verify(_ context.Context, _, password string) error {
	if password != c.password {
		return errWrongPassword
	}
	return nil
}

func newTestSession(t *testing.T) *Session {
	r := newTestRoom(t, nil)
	return NewSession(r, fakeCredentials{password: "right-pw"})
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestSession(t)
	require.Equal(t, StateAnonymous, s.State())

	require.NoError(t, s.Login(context.Background(), "alice", "right-pw"))
	require.Equal(t, StateAuthenticated, s.State())
	require.Equal(t, "alice", s.Username())

	snapshot, err := s.Join(context.Background())
	require.NoError(t, err)
	require.Empty(t, snapshot)
	require.Equal(t, StateSubscribed, s.State())

	m, err := s.Send(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "alice", m.Username)

	s.Disconnect()
	require.Equal(t, StateClosed, s.State())
}

func TestSessionLoginFailureKeepsAnonymous(t *testing.T) {
	s := newTestSession(t)

	err := s.Login(context.Background(), "alice", "wrong-pw")
	require.Equal(t, errWrongPassword, err)
	require.Equal(t, StateAnonymous, s.State())
	require.Empty(t, s.Username())
}

func TestSessionGuardsOrdering(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Join(context.Background())
	require.Equal(t, ErrNotAuthenticated, err)

	_, err = s.Send(context.Background(), "hi")
	require.Equal(t, ErrNotSubscribed, err)

	require.Equal(t, ErrNotSubscribed, s.Clear(context.Background()))

	require.NoError(t, s.Login(context.Background(), "alice", "right-pw"))
	require.Equal(t, ErrAlreadyAuthenticated, s.Login(context.Background(), "alice", "right-pw"))

	_, err = s.Send(context.Background(), "hi")
	require.Equal(t, ErrNotSubscribed, err)

	_, err = s.Join(context.Background())
	require.NoError(t, err)
	_, err = s.Join(context.Background())
	require.Equal(t, ErrAlreadySubscribed, err)
}

func TestSessionClearBySubscriber(t *testing.T) {
	r := newTestRoom(t, nil)
	s := NewSession(r, fakeCredentials{password: "pw"})

	require.NoError(t, s.Login(context.Background(), "alice", "pw"))
	_, err := s.Join(context.Background())
	require.NoError(t, err)

	_, err = s.Send(context.Background(), "hi")
	require.NoError(t, err)

	require.NoError(t, s.Clear(context.Background()))

	history, err := r.History(context.Background())
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestSessionDisconnectIdempotent(t *testing.T) {
	s := newTestSession(t)

	require.NoError(t, s.Login(context.Background(), "alice", "right-pw"))
	_, err := s.Join(context.Background())
	require.NoError(t, err)

	s.Disconnect()
	s.Disconnect()
	require.Equal(t, StateClosed, s.State())

	require.Equal(t, ErrSessionClosed, s.Login(context.Background(), "alice", "right-pw"))
	_, err = s.Join(context.Background())
	require.Equal(t, ErrSessionClosed, err)
}

func TestSessionEventsDeliveredAcrossSessions(t *testing.T) {
	r := newTestRoom(t, nil)

	a := NewSession(r, fakeCredentials{password: "pw"})
	require.NoError(t, a.Login(context.Background(), "A", "pw"))
	_, err := a.Join(context.Background())
	require.NoError(t, err)

	b := NewSession(r, fakeCredentials{password: "pw"})
	require.NoError(t, b.Login(context.Background(), "B", "pw"))
	_, err = b.Join(context.Background())
	require.NoError(t, err)

	_, err = a.Send(context.Background(), "hi")
	require.NoError(t, err)

	ev := receive(t, b.Events())
	require.Equal(t, EventMessage, ev.Kind)
	require.Equal(t, "hi", ev.Message.Body)
	require.Equal(t, "A", ev.Message.Username)
}
