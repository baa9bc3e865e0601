package realtime

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// socket is the subset of *websocket.Conn the registry needs. Tests
// substitute an in-memory implementation.
type socket interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Conn is one websocket connection owned by a user. Writes are
// serialized because gorilla/websocket allows only one concurrent
// writer.
type Conn struct {
	UserID int64

	mu sync.Mutex
	ws socket
}

// NewConn wraps an upgraded websocket connection.
func NewConn(ws *websocket.Conn, userID int64) *Conn {
	return &Conn{UserID: userID, ws: ws}
}

func newConnWithSocket(ws socket, userID int64) *Conn {
	return &Conn{UserID: userID, ws: ws}
}

// Send writes a text frame.
func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// SendJSON marshals v and writes it as a text frame.
func (c *Conn) SendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(payload)
}

// Close closes the underlying websocket.
func (c *Conn) Close() error {
	return c.ws.Close()
}
