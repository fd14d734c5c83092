package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the minimal session surface the router needs. The real
// implementation wraps a websocket connection; tests substitute fakes.
type Transport interface {
	Write(data []byte) error
	Close() error
}

// WSTransport adapts a gorilla websocket connection. Writes are serialized
// with a mutex since the websocket connection permits one concurrent writer.
type WSTransport struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	writeWait time.Duration
}

func NewWSTransport(conn *websocket.Conn, writeWait time.Duration) *WSTransport {
	return &WSTransport{conn: conn, writeWait: writeWait}
}

func (t *WSTransport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline := time.Now().Add(t.writeWait)
	t.conn.SetWriteDeadline(deadline)
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}
