package room

import (
	"sync"
	"sync/atomic"

	"roomchat/internal/storage"
)

type EventKind int

const (
	// EventMessage carries a single appended message
	EventMessage EventKind = iota
	// EventCleared tells the subscriber to drop all locally held messages
	EventCleared
)

type Event struct {
	Kind    EventKind
	Message storage.Message
}

// Subscription is one subscriber's view of the room event stream.
// Events arrive in increasing message id order with no gaps as long as the
// subscriber keeps up; a subscriber that falls behind is flagged lagged and
// is expected to resynchronize with a fresh snapshot instead of blocking
// the writer.
type Subscription struct {
	b      *broadcaster
	events chan Event

	// watermark is the highest message id enqueued to this subscription,
	// written under b.mu
	watermark int64

	lagged int32
	closed bool
}

// Events returns the channel delivering room events. It is closed on Close.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Lagged reports whether events were dropped since the last resync
func (s *Subscription) Lagged() bool {
	return atomic.LoadInt32(&s.lagged) == 1
}

// Close removes the subscription and closes its event channel. Idempotent.
func (s *Subscription) Close() {
	s.b.remove(s)
}

type broadcaster struct {
	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	queueSize int
}

func newBroadcaster(queueSize int) *broadcaster {
	return &broadcaster{
		subs:      make(map[*Subscription]struct{}),
		queueSize: queueSize,
	}
}

// subscribe registers a new subscription that will only receive messages
// with id greater than watermark
func (b *broadcaster) subscribe(watermark int64) *Subscription {
	sub := &Subscription{
		b:         b,
		events:    make(chan Event, b.queueSize),
		watermark: watermark,
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

func (b *broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true
	delete(b.subs, sub)
	close(sub.events)
}

// publish enqueues ev to every subscription without ever blocking the caller.
// Message events below a subscription's watermark are dropped, which both
// de-duplicates redelivery from the change-notification stream and stitches
// the tail to the subscribe-time snapshot. A full queue marks the
// subscription lagged and the event is dropped; the subscriber recovers by
// refetching the log.
func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		if ev.Kind == EventMessage && ev.Message.ID <= sub.watermark {
			continue
		}

		select {
		case sub.events <- ev:
			if ev.Kind == EventMessage {
				sub.watermark = ev.Message.ID
			}
		default:
			atomic.StoreInt32(&sub.lagged, 1)
		}
	}
}

// resync moves the subscription watermark forward and clears the lag flag,
// called with a snapshot the subscriber is about to apply. Events enqueued
// before the snapshot was taken are discarded so none of them, a stale
// cleared event in particular, can be delivered after the snapshot.
func (b *broadcaster) resync(sub *Subscription, watermark int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.closed {
		return
	}

drain:
	for {
		select {
		case <-sub.events:
		default:
			break drain
		}
	}

	if watermark > sub.watermark {
		sub.watermark = watermark
	}
	atomic.StoreInt32(&sub.lagged, 0)
}
