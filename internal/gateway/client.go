// ABOUTME: Gateway client: one long-lived socket to the agent gateway with handshake and reconnect
// ABOUTME: Correlates requests and replies by id, enforces per-call deadlines, fails fast when not ready

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the connection state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHandshake
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshake:
		return "awaiting-handshake"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Request outcomes reported to the Observer.
const (
	OutcomeOK           = "ok"
	OutcomeGatewayError = "gateway_error"
	OutcomeTimeout      = "timeout"
	OutcomeClosed       = "closed"
	OutcomeTransport    = "transport_error"
	OutcomeCancelled    = "cancelled"
	OutcomeNotConnected = "not_connected"
)

// Observer receives connection and request telemetry. Methods are called
// synchronously and must not block.
type Observer interface {
	StateChanged(state State)
	RequestFinished(method, outcome string, elapsed time.Duration)
	PendingChanged(n int)
	ReconnectScheduled()
}

// Options configures a Client. Zero durations fall back to the defaults
// below.
type Options struct {
	URL           string
	Token         string
	SessionKey    string
	ClientID      string
	ClientVersion string
	Platform      string

	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	MessageTimeout   time.Duration
	ListTimeout      time.Duration
	SpawnTimeout     time.Duration
	KillTimeout      time.Duration
	LogsTimeout      time.Duration
	MemoryTimeout    time.Duration

	Observer Observer

	// OnStateChange is called with the client lock held; it may call
	// State but nothing else on the client.
	OnStateChange func(State)
}

func (o *Options) applyDefaults() {
	if o.SessionKey == "" {
		o.SessionKey = "main"
	}
	if o.ClientID == "" {
		o.ClientID = "coven-dashboard"
	}
	if o.ClientVersion == "" {
		o.ClientVersion = "1.0.0"
	}
	if o.Platform == "" {
		o.Platform = runtime.GOOS
	}
	defaults := []struct {
		dst *time.Duration
		def time.Duration
	}{
		{&o.ReconnectDelay, 3 * time.Second},
		{&o.HandshakeTimeout, 10 * time.Second},
		{&o.MessageTimeout, 90 * time.Second},
		{&o.ListTimeout, 10 * time.Second},
		{&o.SpawnTimeout, 30 * time.Second},
		{&o.KillTimeout, 10 * time.Second},
		{&o.LogsTimeout, 10 * time.Second},
		{&o.MemoryTimeout, 15 * time.Second},
	}
	for _, d := range defaults {
		if *d.dst <= 0 {
			*d.dst = d.def
		}
	}
}

const eventBufferSize = 64

// Client owns the single connection to the gateway. All requests multiplex
// over it. Create one per process with New and share it by reference.
type Client struct {
	opts      Options
	transport Transport
	logger    *slog.Logger
	pending   *pendingTable
	state     atomic.Int32

	mu             sync.Mutex
	conn           Conn
	connectID      string
	reconnecting   bool // a connect attempt is in flight
	retryTimer     *time.Timer
	handshakeTimer *time.Timer
	started        bool
	closed         bool

	subMu      sync.RWMutex
	subs       map[string]chan Event
	subsClosed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a client. It does not connect until Start is called.
func New(opts Options, transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:      opts,
		transport: transport,
		logger:    logger.With("component", "gateway"),
		pending:   newPendingTable(),
		subs:      make(map[string]chan Event),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins connecting in the background. The client keeps reconnecting
// until Close is called or ctx is cancelled.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.ctx.Done():
		}
	}()

	go c.connect()
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Ready reports whether application requests may be sent.
func (c *Client) Ready() bool {
	return c.State() == StateReady
}

// URL returns the gateway address this client dials.
func (c *Client) URL() string {
	return c.opts.URL
}

// Pending returns the number of in-flight requests.
func (c *Client) Pending() int {
	return c.pending.len()
}

// Close stops reconnecting, closes the socket and rejects anything still
// pending. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()

	c.subMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsClosed = true
	c.subMu.Unlock()

	c.logger.Info("gateway client closed")
	return nil
}

// Subscribe returns a channel of unsolicited gateway events. The channel is
// closed when ctx is cancelled or the client closes. Events are dropped for
// subscribers that fall behind.
func (c *Client) Subscribe(ctx context.Context) <-chan Event {
	id := uuid.New().String()
	ch := make(chan Event, eventBufferSize)

	c.subMu.Lock()
	if c.subsClosed {
		c.subMu.Unlock()
		close(ch)
		return ch
	}
	c.subs[id] = ch
	c.subMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-c.ctx.Done():
			return
		}
		c.subMu.Lock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
		c.subMu.Unlock()
	}()

	return ch
}

func (c *Client) publish(ev Event) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Debug("dropped gateway event for slow subscriber", "event", ev.Name)
		}
	}
}

// setState must be called with c.mu held.
func (c *Client) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev == s {
		return
	}
	c.logger.Debug("gateway state changed", "from", prev.String(), "to", s.String())
	if c.opts.Observer != nil {
		c.opts.Observer.StateChanged(s)
	}
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

func (c *Client) connect() {
	c.mu.Lock()
	if c.closed || c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.setState(StateConnecting)
	c.mu.Unlock()

	c.logger.Info("connecting to gateway", "url", c.opts.URL)

	conn, err := c.transport.Dial(c.ctx)
	if err != nil {
		c.logger.Warn("gateway connection failed", "url", c.opts.URL, "error", err)
		c.mu.Lock()
		c.reconnecting = false
		c.setState(StateDisconnected)
		c.mu.Unlock()
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.reconnecting = false
		c.setState(StateDisconnected)
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.connectID = ""
	c.setState(StateAwaitingHandshake)
	c.handshakeTimer = time.AfterFunc(c.opts.HandshakeTimeout, func() { c.handshakeExpired(conn) })
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Debug("gateway socket open, waiting for challenge")
	go c.readLoop(conn)
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.retryTimer != nil {
		return
	}

	c.logger.Info("scheduling gateway reconnect", "delay", c.opts.ReconnectDelay)
	c.retryTimer = time.AfterFunc(c.opts.ReconnectDelay, func() {
		c.mu.Lock()
		c.retryTimer = nil
		c.mu.Unlock()
		c.connect()
	})
	if c.opts.Observer != nil {
		c.opts.Observer.ReconnectScheduled()
	}
}

func (c *Client) handshakeExpired(conn Conn) {
	c.mu.Lock()
	stale := c.conn != conn || c.State() == StateReady
	c.mu.Unlock()
	if stale {
		return
	}

	c.logger.Warn("gateway handshake timed out", "timeout", c.opts.HandshakeTimeout)
	_ = conn.Close()
}

// readLoop is the only reader of conn, so inbound frames are handled one at
// a time in arrival order.
func (c *Client) readLoop(conn Conn) {
	defer c.wg.Done()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.handleFrame(conn, data)
	}
}

// handleClose rejects every pending request before a reconnect is scheduled.
func (c *Client) handleClose(conn Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connectID = ""
	c.reconnecting = false
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
		c.handshakeTimer = nil
	}
	c.setState(StateDisconnected)
	drained := c.pending.drain()
	closed := c.closed
	c.mu.Unlock()

	_ = conn.Close()

	if closed {
		c.logger.Debug("gateway socket closed", "rejected", len(drained))
	} else {
		c.logger.Warn("gateway disconnected", "error", cause, "rejected", len(drained))
	}

	for _, p := range drained {
		p.resolve(result{err: fmt.Errorf("%s: %w", p.method, ErrConnectionClosed)})
		c.observeFinished(p, OutcomeClosed)
	}
	c.observePending()

	if !closed {
		c.scheduleReconnect()
	}
}

func (c *Client) handleFrame(conn Conn, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn("failed to parse gateway frame", "error", err)
		return
	}
	c.logger.Debug("gateway frame received", "frame", truncate(string(data), 200))

	switch f.Type {
	case FrameEvent:
		if f.Event == EventConnectChallenge {
			c.answerChallenge(conn)
			return
		}
		c.publish(Event{Name: f.Event, Raw: append(json.RawMessage(nil), data...)})
	case FrameResponse:
		if c.isHandshakeReply(conn, &f) {
			c.completeHandshake(conn, &f)
			return
		}
		c.resolvePending(&f)
	default:
		c.logger.Debug("ignoring gateway frame", "type", f.Type)
	}
}

func (c *Client) answerChallenge(conn Conn) {
	c.mu.Lock()
	if c.conn != conn || c.State() != StateAwaitingHandshake {
		c.mu.Unlock()
		c.logger.Debug("ignoring unexpected challenge", "state", c.State().String())
		return
	}
	id := MethodConnect + "-" + uuid.New().String()
	c.connectID = id
	c.mu.Unlock()

	data, err := json.Marshal(RequestFrame{
		Type:   FrameRequest,
		ID:     id,
		Method: MethodConnect,
		Params: newConnectParams(c.opts),
	})
	if err != nil {
		c.logger.Error("failed to encode connect request", "error", err)
		_ = conn.Close()
		return
	}

	c.logger.Debug("received challenge, sending connect request")
	if err := conn.WriteMessage(data); err != nil {
		c.logger.Warn("failed to send connect request", "error", err)
		_ = conn.Close()
	}
}

func (c *Client) isHandshakeReply(conn Conn, f *Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn || c.State() != StateAwaitingHandshake {
		return false
	}
	if c.connectID != "" && f.ID() == c.connectID {
		return true
	}
	return f.OK && f.payloadType() == PayloadHelloOK
}

func (c *Client) completeHandshake(conn Conn, f *Frame) {
	if !f.OK || f.payloadType() != PayloadHelloOK {
		ge := parseGatewayError(MethodConnect, f.Error)
		c.logger.Error("gateway rejected handshake", "error", ge.Message)
		_ = conn.Close()
		return
	}

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
		c.handshakeTimer = nil
	}
	c.reconnecting = false
	c.setState(StateReady)
	c.mu.Unlock()

	c.logger.Info("gateway handshake complete", "url", c.opts.URL)
}

func (c *Client) resolvePending(f *Frame) {
	id := f.ID()
	p, ok := c.pending.take(id)
	if !ok {
		c.logger.Warn("dropping reply with unknown id", "id", id)
		return
	}

	outcome := OutcomeOK
	res := result{payload: f.Payload}
	if !f.OK {
		res = result{err: parseGatewayError(p.method, f.Error)}
		outcome = OutcomeGatewayError
	}
	p.resolve(res)
	c.observeFinished(p, outcome)
	c.observePending()
}

func (c *Client) expire(p *pendingRequest, timeout time.Duration) {
	if !c.pending.takeExact(p.id, p) {
		return
	}
	c.logger.Warn("gateway request timed out", "method", p.method, "id", p.id, "timeout", timeout)
	p.expire(result{err: fmt.Errorf("%s after %s: %w", p.method, timeout, ErrTimeout)})
	c.observeFinished(p, OutcomeTimeout)
	c.observePending()
}

// request sends one application request and waits for its reply, the
// deadline, the connection closing, or ctx.
func (c *Client) request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := method + "-" + uuid.New().String()
	data, err := json.Marshal(RequestFrame{Type: FrameRequest, ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.State() != StateReady {
		c.mu.Unlock()
		if c.opts.Observer != nil {
			c.opts.Observer.RequestFinished(method, OutcomeNotConnected, 0)
		}
		return nil, ErrNotConnected
	}
	p := newPendingRequest(id, method)
	c.pending.add(p)
	p.timer = time.AfterFunc(timeout, func() { c.expire(p, timeout) })
	c.mu.Unlock()
	c.observePending()

	c.logger.Debug("sending gateway request", "method", method, "id", id)

	if err := conn.WriteMessage(data); err != nil {
		if c.pending.takeExact(id, p) {
			p.timer.Stop()
			c.observeFinished(p, OutcomeTransport)
			c.observePending()
			var te *TransportError
			if errors.As(err, &te) {
				return nil, err
			}
			return nil, &TransportError{Op: "write", Err: err}
		}
	}

	select {
	case res := <-p.done:
		return res.payload, res.err
	case <-ctx.Done():
		if c.pending.takeExact(id, p) {
			p.timer.Stop()
			c.observeFinished(p, OutcomeCancelled)
			c.observePending()
			return nil, ctx.Err()
		}
		res := <-p.done
		return res.payload, res.err
	}
}

func (c *Client) observeFinished(p *pendingRequest, outcome string) {
	if c.opts.Observer != nil {
		c.opts.Observer.RequestFinished(p.method, outcome, time.Since(p.sentAt))
	}
}

func (c *Client) observePending() {
	if c.opts.Observer != nil {
		c.opts.Observer.PendingChanged(c.pending.len())
	}
}
