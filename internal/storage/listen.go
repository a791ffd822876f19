package storage

import (
	"context"
	"github.com/valyala/fastjson"
)

// Handler consumes message log change events observed on the NOTIFY channel
type Handler interface {
	MessageAppended(Message)
	LogCleared()
}

// Listen blocks on a dedicated connection delivering message log change
// events to h in commit order until ctx is cancelled or the connection fails.
// Delivery is at-least-once from the consumer point of view: a process that
// also writes to the log will observe its own appends here as well, so
// handlers are expected to de-duplicate by message id.
func (s *Store) Listen(ctx context.Context, h Handler) error {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err = conn.Exec(ctx, "listen "+eventChannel); err != nil {
		return err
	}

	s.logger.Debugf("Listening on %q", eventChannel)

	var p fastjson.Parser
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		v, err := p.Parse(n.Payload)
		if err != nil {
			s.logger.Errorf("malformed event payload: %v", err)
			continue
		}

		switch op := string(v.GetStringBytes("op")); op {
		case "append":
			m, ok, err := s.messageByID(ctx, v.GetInt64("id"))
			if err != nil {
				s.logger.Errorf("loading appended message: %v", err)
				continue
			}
			if !ok {
				// cleared before the event was delivered
				continue
			}
			h.MessageAppended(m)
		case "clear":
			h.LogCleared()
		default:
			s.logger.Errorf("unknown event op %q", op)
		}
	}
}
