// internal/hub/conn.go
package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unclebandit/courier-backend/internal/model"
)

const writeWait = 10 * time.Second

// Conn is one live client connection. Outbound events go through a buffered
// channel so a slow client never blocks a broadcast; when the buffer
// overflows the connection is dropped instead.
type Conn struct {
	ID       string
	TenantID int
	UserID   string

	ws    *websocket.Conn
	send  chan model.Event
	done  chan struct{}
	once  sync.Once
	alive atomic.Bool
}

// markAlive is called for every inbound frame, pongs included.
func (c *Conn) markAlive() {
	c.alive.Store(true)
}

// enqueue hands an event to the write pump without blocking. Reports false
// when the outbound buffer is full.
func (c *Conn) enqueue(ev model.Event) bool {
	select {
	case <-c.done:
		return true // already closing, nothing to do
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// close shuts the socket down exactly once. Callers deregister separately.
func (c *Conn) close(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// clientMessage is what clients may send upstream.
type clientMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	IsTyping       bool   `json:"isTyping,omitempty"`
}

// readPump consumes client messages until the socket dies. Every inbound
// frame counts as a liveness signal.
func (c *Conn) readPump(h *Hub) {
	defer h.evict(c, websocket.CloseNormalClosure, "")

	c.ws.SetPongHandler(func(string) error {
		c.markAlive()
		return nil
	})

	for {
		var msg clientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return
		}
		c.markAlive()

		switch msg.Type {
		case "ping":
			c.enqueue(model.NewEvent(model.EventPong, nil))
		case "typing":
			// Relay to the rest of the tenant, not back to the sender.
			h.Push(c.TenantID, model.NewEvent(model.EventTyping, map[string]any{
				"conversationId": msg.ConversationID,
				"isTyping":       msg.IsTyping,
				"userId":         c.UserID,
			}), c.ID)
		}
	}
}

// writePump drains the outbound buffer onto the socket.
func (c *Conn) writePump(h *Hub) {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				h.evict(c, websocket.CloseAbnormalClosure, "write failed")
				return
			}
		}
	}
}
