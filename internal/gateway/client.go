package gateway

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is the subset of the websocket connection the gateway uses. Tests
// substitute an in-memory implementation.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// sendBuffer bounds each client's outbound queue. A full buffer drops the
// event rather than blocking the pushing handler.
const sendBuffer = 32

type client struct {
	id     string
	userID uuid.UUID
	conn   Conn
	send   chan []byte
}

// readPump reads inbound events until the connection errors, then detaches
// the client.
func (c *client) readPump(g *Gateway) {
	defer g.drop(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		g.handleEvent(c, &ev)
	}
}

// writePump drains the send channel onto the connection. It exits when the
// channel closes on detach.
func (c *client) writePump() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
