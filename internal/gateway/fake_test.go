// ABOUTME: In-memory Transport and Conn used by the gateway client tests
// ABOUTME: Lets a test play the gateway: push frames, read requests, drop the socket

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	inbound   chan []byte
	outbound  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 64),
		outbound: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, io.EOF
	default:
	}
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.outbound <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// push sends a frame from the gateway side.
func (c *fakeConn) push(t *testing.T, frame any) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	c.inbound <- data
}

type sentRequest struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// expectRequest reads the next frame the client wrote.
func (c *fakeConn) expectRequest(t *testing.T) sentRequest {
	t.Helper()
	select {
	case data := <-c.outbound:
		var req sentRequest
		require.NoError(t, json.Unmarshal(data, &req))
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client request")
		return sentRequest{}
	}
}

func (c *fakeConn) reply(t *testing.T, id string, payload any) {
	t.Helper()
	c.push(t, map[string]any{"type": "res", "id": id, "ok": true, "payload": payload})
}

func (c *fakeConn) fail(t *testing.T, id string, errVal any) {
	t.Helper()
	c.push(t, map[string]any{"type": "res", "id": id, "ok": false, "error": errVal})
}

type fakeTransport struct {
	conns   chan *fakeConn
	dials   atomic.Int32
	dialErr atomic.Pointer[error]
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{conns: make(chan *fakeConn, 8)}
}

func (t *fakeTransport) Dial(ctx context.Context) (Conn, error) {
	t.dials.Add(1)
	if errp := t.dialErr.Load(); errp != nil {
		return nil, &TransportError{Op: "dial", Err: *errp}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := newFakeConn()
	t.conns <- c
	return c, nil
}

func (t *fakeTransport) failDials() {
	err := errors.New("connection refused")
	t.dialErr.Store(&err)
}

func (t *fakeTransport) nextConn(tb testing.TB) *fakeConn {
	tb.Helper()
	select {
	case c := <-t.conns:
		return c
	case <-time.After(2 * time.Second):
		tb.Fatal("timed out waiting for dial")
		return nil
	}
}

// recordingObserver captures observer callbacks in order.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, s)
}

func (o *recordingObserver) StateChanged(s State) { o.add("state:" + s.String()) }
func (o *recordingObserver) RequestFinished(method, outcome string, _ time.Duration) {
	o.add("finished:" + method + ":" + outcome)
}
func (o *recordingObserver) PendingChanged(int)  {}
func (o *recordingObserver) ReconnectScheduled() { o.add("reconnect") }

func (o *recordingObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func indexOf(events []string, want string) int {
	for i, e := range events {
		if e == want {
			return i
		}
	}
	return -1
}
