package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/valyala/fastjson"

	"roomchat/internal/room"
	"roomchat/internal/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is a log message enriched with the deterministic display color
// of its author
type wsMessage struct {
	storage.Message
	Color string `json:"color"`
}

// wsFrame is the single outbound frame shape: "snapshot" replaces the whole
// client view, "message" appends one message, "cleared" empties the view,
// "authenticated" acknowledges a login, "error" reports a failed request
type wsFrame struct {
	Type     string      `json:"type"`
	Messages []wsMessage `json:"messages,omitempty"`
	Message  *wsMessage  `json:"message,omitempty"`
	Username string      `json:"username,omitempty"`
	Error    string      `json:"error,omitempty"`
}

func enrich(m storage.Message) *wsMessage {
	return &wsMessage{Message: m, Color: room.ColorFor(m.Username)}
}

func enrichAll(messages []storage.Message) []wsMessage {
	out := make([]wsMessage, len(messages))
	for i, m := range messages {
		out[i] = wsMessage{Message: m, Color: room.ColorFor(m.Username)}
	}
	return out
}

// wsClient owns one websocket connection and its room session. All writes go
// through the out channel so only one goroutine touches the connection for
// writing.
type wsClient struct {
	h    *handler
	conn *websocket.Conn
	sess *room.Session
	out  chan wsFrame
	done chan struct{}
}

// serveWS handles HTTP requests on "/room/ws" endpoint: upgrades the
// connection and drives the session through login/join/send/clear frames
// sent by the client
func (h *handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("websocket upgrade: %v", err)
		return
	}

	c := &wsClient{
		h:    h,
		conn: conn,
		sess: room.NewSession(h.room, h.auth),
		out:  make(chan wsFrame, 32),
		done: make(chan struct{}),
	}

	go c.writeLoop()
	c.readLoop()
}

// send enqueues a frame unless the connection is already being torn down
func (c *wsClient) send(f wsFrame) {
	select {
	case c.out <- f:
	case <-c.done:
	}
}

func (c *wsClient) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.out:
			payload, err := json.Marshal(f)
			if err != nil {
				c.h.logger.Errorf("marshaling websocket frame: %v", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// readLoop consumes client frames until the connection drops; dropping the
// connection is the disconnect transition
func (c *wsClient) readLoop() {
	defer func() {
		c.sess.Disconnect()
		close(c.done)
		c.conn.Close()
	}()

	var p fastjson.Parser
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		v, err := p.ParseBytes(data)
		if err != nil {
			c.send(wsFrame{Type: "error", Error: "malformed frame"})
			continue
		}

		c.handleFrame(v)
	}
}

func (c *wsClient) handleFrame(v *fastjson.Value) {
	ctx := context.Background()

	switch op := string(v.GetStringBytes("op")); op {
	case "login":
		username := string(v.GetStringBytes("username"))
		password := string(v.GetStringBytes("password"))
		if err := c.sess.Login(ctx, username, password); err != nil {
			c.send(wsFrame{Type: "error", Error: err.Error()})
			return
		}
		c.send(wsFrame{Type: "authenticated", Username: username})
	case "join":
		snapshot, err := c.sess.Join(ctx)
		if err != nil {
			c.send(wsFrame{Type: "error", Error: err.Error()})
			return
		}
		c.send(wsFrame{Type: "snapshot", Messages: enrichAll(snapshot)})
		go c.pumpEvents(lastID(snapshot))
	case "send":
		if _, err := c.sess.Send(ctx, string(v.GetStringBytes("body"))); err != nil {
			c.send(wsFrame{Type: "error", Error: err.Error()})
		}
	case "clear":
		if err := c.sess.Clear(ctx); err != nil {
			c.send(wsFrame{Type: "error", Error: err.Error()})
		}
	default:
		c.send(wsFrame{Type: "error", Error: "unknown op"})
	}
}

// pumpEvents forwards room events to the client, de-duplicating by message id
// watermark and replacing the whole view with a fresh snapshot after a lag
func (c *wsClient) pumpEvents(watermark int64) {
	for ev := range c.sess.Events() {
		if c.sess.Lagged() {
			snapshot, err := c.sess.Resync(context.Background())
			if err != nil {
				c.h.logger.Errorf("resync after lag: %v", err)
				continue
			}
			watermark = lastID(snapshot)
			c.send(wsFrame{Type: "snapshot", Messages: enrichAll(snapshot)})
			// ev was dequeued before the snapshot was taken
			continue
		}

		switch ev.Kind {
		case room.EventMessage:
			if ev.Message.ID <= watermark {
				continue
			}
			watermark = ev.Message.ID
			c.send(wsFrame{Type: "message", Message: enrich(ev.Message)})
		case room.EventCleared:
			c.send(wsFrame{Type: "cleared"})
		}
	}
}

func lastID(messages []storage.Message) int64 {
	if len(messages) == 0 {
		return 0
	}
	return messages[len(messages)-1].ID
}
