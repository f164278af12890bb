package registry

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// WebSocketTransport wraps a gorilla connection behind the Transport
// interface. Writes are serialized; gorilla connections allow only one
// concurrent writer.
type WebSocketTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketTransport takes ownership of an upgraded connection's write
// side.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

func (t *WebSocketTransport) Send(payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteJSON(payload)
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Close()
}
