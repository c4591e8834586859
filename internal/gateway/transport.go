// ABOUTME: Transport abstraction for the gateway socket and its gorilla/websocket implementation
// ABOUTME: Client code depends only on Transport/Conn so tests can swap in an in-memory pipe

package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one open duplex connection. ReadMessage blocks until a message
// arrives; any error from it is treated as the connection closing.
// WriteMessage must be safe to call from multiple goroutines.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Transport opens connections to the gateway.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8 << 20
)

// WebSocketTransport dials the gateway with gorilla/websocket.
type WebSocketTransport struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

// NewWebSocketTransport returns a transport for the given ws:// or wss:// URL.
func NewWebSocketTransport(url string) *WebSocketTransport {
	return &WebSocketTransport{
		URL: url,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial opens a new socket.
func (t *WebSocketTransport) Dial(ctx context.Context) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, t.URL, t.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	conn.SetReadLimit(maxMessageSize)
	return &wsConn{conn: conn}, nil
}

// wsConn serializes writes; gorilla allows one concurrent reader and one
// concurrent writer.
type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, &TransportError{Op: "read", Err: err}
	}
	return data, nil
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
