package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mytesting "roomchat/internal/testing"
)

func bootstrap(t *testing.T) *Store {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	s, err := New(logger.Sugar(), TestConfig, ConnectionTimeout(3*time.Second))
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}

	return s
}

func TestCreateUser(t *testing.T) {
	s := bootstrap(t)

	_, err := s.CreateUser(context.Background(), mytesting.RandString(), "hash")
	require.NoError(t, err)
}

func TestCreateUserExists(t *testing.T) {
	s := bootstrap(t)

	username := mytesting.RandString()
	_, err := s.CreateUser(context.Background(), username, "hash")
	require.NoError(t, err)
	_, err = s.CreateUser(context.Background(), username, "hash")
	require.Equal(t, ErrUserExists, err)
}

func TestUserByUsername(t *testing.T) {
	s := bootstrap(t)

	username := mytesting.RandString()
	id, err := s.CreateUser(context.Background(), username, "hash")
	require.NoError(t, err)

	u, err := s.UserByUsername(context.Background(), username)
	require.NoError(t, err)
	require.Equal(t, id, u.ID)
	require.Equal(t, username, u.Username)
	require.Equal(t, "hash", u.PasswordHash)
}

func TestUserByUsernameNotExist(t *testing.T) {
	s := bootstrap(t)

	_, err := s.UserByUsername(context.Background(), mytesting.RandString())
	require.Equal(t, ErrUserNotExist, err)
}

func TestCreateMessageAssignsIncreasingIDs(t *testing.T) {
	s := bootstrap(t)

	first, err := s.CreateMessage(context.Background(), mytesting.RandString(), "Hi There!")
	require.NoError(t, err)
	second, err := s.CreateMessage(context.Background(), mytesting.RandString(), "Hi There!")
	require.NoError(t, err)

	require.Greater(t, second.ID, first.ID)
	require.False(t, second.CreatedAt.Before(first.CreatedAt))
}

func TestCreateMessageLargeBody(t *testing.T) {
	s := bootstrap(t)

	// well past the 8000 byte NOTIFY payload cap
	body := strings.Repeat("x", 16*1024)
	m, err := s.CreateMessage(context.Background(), mytesting.RandString(), body)
	require.NoError(t, err)

	got, ok, err := s.messageByID(context.Background(), m.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, body, got.Body)
}

func TestMessagesOrder(t *testing.T) {
	s := bootstrap(t)

	username := mytesting.RandString()
	for _, body := range []string{"one", "two", "three"} {
		_, err := s.CreateMessage(context.Background(), username, body)
		require.NoError(t, err)
	}

	messages, err := s.Messages(context.Background())
	require.NoError(t, err)

	for i := 1; i < len(messages); i++ {
		require.Greater(t, messages[i].ID, messages[i-1].ID)
	}
}

func TestClearMessages(t *testing.T) {
	s := bootstrap(t)

	_, err := s.CreateMessage(context.Background(), mytesting.RandString(), "to be cleared")
	require.NoError(t, err)

	require.NoError(t, s.ClearMessages(context.Background()))

	messages, err := s.Messages(context.Background())
	require.NoError(t, err)
	require.Empty(t, messages)
}

type recordingHandler struct {
	appended chan Message
	cleared  chan struct{}
}

func (h *recordingHandler) MessageAppended(m Message) { h.appended <- m }
func (h *recordingHandler) LogCleared()               { h.cleared <- struct{}{} }

func TestListen(t *testing.T) {
	s := bootstrap(t)

	h := &recordingHandler{
		appended: make(chan Message, 16),
		cleared:  make(chan struct{}, 16),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = s.Listen(ctx, h)
		close(done)
	}()

	// give the listener time to issue LISTEN
	time.Sleep(200 * time.Millisecond)

	sent, err := s.CreateMessage(context.Background(), mytesting.RandString(), "hi")
	require.NoError(t, err)

	select {
	case got := <-h.appended:
		require.Equal(t, sent.ID, got.ID)
		require.Equal(t, sent.Username, got.Username)
		require.Equal(t, "hi", got.Body)
	case <-time.After(5 * time.Second):
		t.Fatal("append event was not delivered")
	}

	// bodies above the NOTIFY payload cap are delivered in full
	big := strings.Repeat("x", 16*1024)
	sentBig, err := s.CreateMessage(context.Background(), mytesting.RandString(), big)
	require.NoError(t, err)

	select {
	case got := <-h.appended:
		require.Equal(t, sentBig.ID, got.ID)
		require.Equal(t, big, got.Body)
	case <-time.After(5 * time.Second):
		t.Fatal("large append event was not delivered")
	}

	require.NoError(t, s.ClearMessages(context.Background()))

	select {
	case <-h.cleared:
	case <-time.After(5 * time.Second):
		t.Fatal("clear event was not delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop on cancel")
	}
}
