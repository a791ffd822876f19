// Package room implements the single shared chat room: the append-ordered
// message log access, the fan-out of new messages to connected subscribers
// and the per-client session state machine.
package room

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"roomchat/internal/storage"
)

var ErrEmptyBody = errors.New("message body is empty")

const defaultQueueSize = 64

// Log is the message log boundary the room writes to and reads from.
// Implemented by storage.Store and by MemoryLog.
type Log interface {
	CreateMessage(ctx context.Context, username, body string) (storage.Message, error)
	Messages(ctx context.Context) ([]storage.Message, error)
	ClearMessages(ctx context.Context) error
}

// Notifier is the outbound notification sink boundary. Notify must not block;
// delivery is best-effort and failures stay inside the implementation.
type Notifier interface {
	Notify(text string)
}

// NoopNotifier discards notifications
type NoopNotifier struct{}

func (NoopNotifier) Notify(string) {}

// Room owns the shared state of the single chat room. All mutation goes
// through its methods; writes are serialized so fan-out order matches log
// order and a subscribe-time snapshot is a consistent cut.
type Room struct {
	mu       sync.Mutex
	logger   *zap.SugaredLogger
	log      Log
	notifier Notifier
	b        *broadcaster
}

func New(logger *zap.SugaredLogger, log Log, notifier Notifier) *Room {
	if notifier == nil {
		notifier = NoopNotifier{}
	}

	return &Room{
		logger:   logger,
		log:      log,
		notifier: notifier,
		b:        newBroadcaster(defaultQueueSize),
	}
}

// Send appends a message to the log, fans it out to subscribers and relays
// the text to the notification sink. The relay happens after the send is
// already durable and its outcome never affects the returned result.
func (r *Room) Send(ctx context.Context, username, body string) (storage.Message, error) {
	if strings.TrimSpace(body) == "" {
		return storage.Message{}, ErrEmptyBody
	}

	r.mu.Lock()
	m, err := r.log.CreateMessage(ctx, username, body)
	if err != nil {
		r.mu.Unlock()
		return storage.Message{}, err
	}
	r.b.publish(Event{Kind: EventMessage, Message: m})
	r.mu.Unlock()

	r.notifier.Notify(body)

	return m, nil
}

// History returns the full message log in append order
func (r *Room) History(ctx context.Context) ([]storage.Message, error) {
	return r.log.Messages(ctx)
}

// Clear deletes every message and tells all subscribers to reset to an
// empty view
func (r *Room) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.log.ClearMessages(ctx); err != nil {
		return err
	}
	r.b.publish(Event{Kind: EventCleared})

	return nil
}

// Subscribe atomically captures the current log as the initial snapshot and
// registers a subscription that receives every later append exactly once and
// in order, starting right after the snapshot's last id.
func (r *Room) Subscribe(ctx context.Context) (*Subscription, []storage.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	messages, err := r.log.Messages(ctx)
	if err != nil {
		return nil, nil, err
	}

	sub := r.b.subscribe(lastID(messages))

	return sub, messages, nil
}

// Resync refetches the log for a lagged subscriber and advances its
// watermark so the returned snapshot plus the live tail stay gapless
func (r *Room) Resync(ctx context.Context, sub *Subscription) ([]storage.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	messages, err := r.log.Messages(ctx)
	if err != nil {
		return nil, err
	}

	r.b.resync(sub, lastID(messages))

	return messages, nil
}

// MessageAppended feeds an append event observed on the change-notification
// stream into the fan-out. Subscription watermarks absorb redelivery of
// appends this process published itself.
func (r *Room) MessageAppended(m storage.Message) {
	r.b.publish(Event{Kind: EventMessage, Message: m})
}

// LogCleared feeds a clear event observed on the change-notification stream
// into the fan-out
func (r *Room) LogCleared() {
	r.b.publish(Event{Kind: EventCleared})
}

func lastID(messages []storage.Message) int64 {
	if len(messages) == 0 {
		return 0
	}
	return messages[len(messages)-1].ID
}
