package room

import (
	"context"
	"sync"
	"time"

	"roomchat/internal/storage"
)

// MemoryLog is an in-process Log backed by a mutex-guarded slice. It keeps
// the same contract as the database-backed store: server-assigned strictly
// increasing ids that survive a clear, and created_at assigned at insertion.
// Used by tests and as a storeless backend.
type MemoryLog struct {
	mu       sync.Mutex
	nextID   int64
	messages []storage.Message
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) CreateMessage(_ context.Context, username, body string) (storage.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	m := storage.Message{
		ID:        l.nextID,
		Username:  username,
		Body:      body,
		CreatedAt: time.Now(),
	}
	l.messages = append(l.messages, m)

	return m, nil
}

func (l *MemoryLog) Messages(_ context.Context) ([]storage.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]storage.Message, len(l.messages))
	copy(out, l.messages)

	return out, nil
}

// ClearMessages drops all messages. The id counter is not reset, matching
// bigserial behavior, so subscription watermarks stay valid across a clear.
func (l *MemoryLog) ClearMessages(_ context.Context) error {
	l.mu.Lock()
	l.messages = nil
	l.mu.Unlock()

	return nil
}
