// Package musicassistant talks to a Music Assistant server over its
// WebSocket JSON-RPC dialect and exposes it three ways: as a zone backend
// driver, as a media provider and as a content adapter. All three share one
// Client per server.
package musicassistant

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/metrics"
)

var (
	errNotConnected     = errors.New("not connected")
	errConnectionClosed = errors.New("connection closed")
	errClientClosed     = errors.New("client closed")
	errCallTimeout      = errors.New("rpc timed out")
)

const (
	handshakeTimeout  = 5 * time.Second
	heartbeatInterval = 10 * time.Second
	livenessWindow    = 30 * time.Second
	callTimeout       = 15 * time.Second
	writeTimeout      = 10 * time.Second

	reconnectBase   = 2 * time.Second
	reconnectJitter = 2 * time.Second

	maxCallAttempts = 3
	retryBase       = 300 * time.Millisecond
	retryJitter     = 700 * time.Millisecond
)

type callResult struct {
	result json.RawMessage
	err    error
}

type pendingCall struct {
	command  string
	resultCh chan callResult
	parts    []json.RawMessage
}

// RPCError is a command rejection from the server.
type RPCError struct {
	Command string
	Code    string
	Details string
}

func (e *RPCError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Command, e.Details, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Code)
}

// Client is a reconnecting JSON-RPC client. Connecting is lazy and
// idempotent: concurrent callers share one in-flight dial. Responses are
// correlated by message id; chunked results are accumulated and delivered
// merged. A lost connection rejects all pending calls and reconnects with a
// randomized 2-4 s backoff.
type Client struct {
	url    string
	logger zerolog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	connecting chan struct{}
	pending    map[string]*pendingCall
	handlers   map[uint64]func(Event)
	onConnect  map[uint64]func()
	hookSeq    uint64
	closed     bool

	done chan struct{}

	writeMu  sync.Mutex
	nextID   atomic.Uint64
	lastPong atomic.Int64
}

// NewClient builds a client for ws://host:port/ws. Nothing connects until
// the first call.
func NewClient(url string) *Client {
	return &Client{
		url:       url,
		logger:    log.WithComponent("musicassistant"),
		pending:   make(map[string]*pendingCall),
		handlers:  make(map[uint64]func(Event)),
		onConnect: make(map[uint64]func()),
		done:      make(chan struct{}),
	}
}

// Subscribe registers a handler for pushed events and returns its remover.
// Handlers run on the read goroutine and must return quickly.
func (c *Client) Subscribe(h func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hookSeq++
	id := c.hookSeq
	c.handlers[id] = h
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// OnConnect registers a hook that runs after every successful dial,
// including reconnects, and returns its remover. Hooks run in registration
// order on one goroutine.
func (c *Client) OnConnect(f func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hookSeq++
	id := c.hookSeq
	c.onConnect[id] = f
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onConnect, id)
	}
}

// Connected reports the current link state.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Done is closed when the client shuts down for good.
func (c *Client) Done() <-chan struct{} { return c.done }

// Call sends a command and waits for its merged result. Dial failures and
// dropped connections are retried up to three times with a 300-1000 ms gap;
// every other error propagates immediately.
func (c *Client) Call(ctx context.Context, command string, args map[string]any) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt < maxCallAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBase + rand.N(retryJitter)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.ensureConnected(ctx); err != nil {
			if !errors.Is(err, errNotConnected) {
				return nil, err
			}
			lastErr = err
			continue
		}

		result, err := c.call(ctx, command, args)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, errNotConnected) && !errors.Is(err, errConnectionClosed) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// CallInto is Call plus decoding into out.
func (c *Client) CallInto(ctx context.Context, command string, args map[string]any, out any) error {
	result, err := c.Call(ctx, command, args)
	if err != nil {
		return err
	}
	if out == nil || len(result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", command, err)
	}
	return nil
}

// Close terminates the connection and rejects everything in flight.
// Idempotent and safe from any state, including mid-connect.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	calls := c.pending
	c.pending = make(map[string]*pendingCall)
	close(c.done)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	for _, p := range calls {
		p.resultCh <- callResult{err: errConnectionClosed}
	}
	return nil
}

// EnsureBackground brings the link up without blocking the caller, falling
// into the reconnect loop when the first dial fails. Used when a zone comes
// up before the server does.
func (c *Client) EnsureBackground() {
	go func() {
		err := c.ensureConnected(context.Background())
		if err == nil || errors.Is(err, errClientClosed) {
			return
		}
		c.reconnectLoop()
	}()
}

// ensureConnected dials unless a connection is already up. Concurrent
// callers wait on the same in-flight attempt instead of dialing twice.
func (c *Client) ensureConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return errClientClosed
		}
		if c.connected {
			c.mu.Unlock()
			return nil
		}
		if c.connecting != nil {
			wait := c.connecting
			c.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		attempt := make(chan struct{})
		c.connecting = attempt
		c.mu.Unlock()

		err := c.dial(ctx)

		c.mu.Lock()
		c.connecting = nil
		close(attempt)
		c.mu.Unlock()

		if err != nil {
			return fmt.Errorf("%w: %v", errNotConnected, err)
		}

		go c.runConnectHooks()
		return nil
	}
}

func (c *Client) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.lastPong.Store(time.Now().UnixNano())
	conn.SetPongHandler(func(string) error {
		c.lastPong.Store(time.Now().UnixNano())
		return nil
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return errClientClosed
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info().Str("url", c.url).Msg("connected")
	go c.readPump(conn)
	go c.heartbeat(conn)
	return nil
}

func (c *Client) runConnectHooks() {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.onConnect))
	for id := range c.onConnect {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	hooks := make([]func(), 0, len(ids))
	for _, id := range ids {
		hooks = append(hooks, c.onConnect[id])
	}
	c.mu.Unlock()
	for _, f := range hooks {
		f()
	}
}

// readPump owns the connection's read side until it dies.
func (c *Client) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		c.lastPong.Store(time.Now().UnixNano())
		c.handleFrame(data)
	}
}

// heartbeat pings every 10 s and force-terminates the socket when nothing,
// not even a pong, arrived for 30 s. The readPump then runs the disconnect
// path.
func (c *Client) heartbeat(conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		current := c.connected && c.conn == conn
		c.mu.Unlock()
		if !current {
			return
		}

		last := time.Unix(0, c.lastPong.Load())
		if time.Since(last) > livenessWindow {
			c.logger.Warn().Msg("no pong within liveness window, terminating connection")
			conn.Close()
			return
		}

		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
			c.logger.Warn().Err(err).Msg("ping failed")
		}
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	calls := c.pending
	c.pending = make(map[string]*pendingCall)
	closed := c.closed
	c.mu.Unlock()

	for _, p := range calls {
		p.resultCh <- callResult{err: errConnectionClosed}
	}
	if closed {
		return
	}

	c.logger.Warn().Err(cause).Msg("connection lost")
	go c.reconnectLoop()
}

// reconnectLoop redials forever with a randomized 2-4 s gap until the
// connection is back or the client is closed.
func (c *Client) reconnectLoop() {
	for {
		select {
		case <-time.After(reconnectBase + rand.N(reconnectJitter)):
		case <-c.done:
			return
		}

		metrics.BackendReconnectsTotal.WithLabelValues("musicassistant").Inc()
		err := c.ensureConnected(context.Background())
		if err == nil {
			return
		}
		if errors.Is(err, errClientClosed) {
			return
		}
		c.logger.Warn().Err(err).Msg("reconnect failed")
	}
}

func (c *Client) call(ctx context.Context, command string, args map[string]any) (json.RawMessage, error) {
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	p := &pendingCall{command: command, resultCh: make(chan callResult, 1)}

	c.mu.Lock()
	if !c.connected || c.conn == nil {
		c.mu.Unlock()
		return nil, errNotConnected
	}
	conn := c.conn
	c.pending[id] = p
	c.mu.Unlock()

	req := rpcRequest{MessageID: id, Command: command, Args: args}
	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("%w: %v", errNotConnected, err)
	}

	select {
	case r := <-p.resultCh:
		return r.result, r.err
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	case <-time.After(callTimeout):
		c.dropPending(id)
		return nil, fmt.Errorf("%s: %w", command, errCallTimeout)
	}
}

func (c *Client) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) handleFrame(data []byte) {
	var frame rpcFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("unparseable frame")
		return
	}

	switch {
	case frame.Event != "":
		c.dispatchEvent(Event{Type: frame.Event, ObjectID: frame.ObjectID, Data: frame.Data})

	case frame.MessageID != "":
		c.handleResponse(&frame)

	case frame.ServerVersion != "":
		c.logger.Info().Str("server_version", frame.ServerVersion).Msg("server info")

	default:
		c.logger.Debug().Msg("frame without event or message id")
	}
}

func (c *Client) handleResponse(frame *rpcFrame) {
	c.mu.Lock()
	p, ok := c.pending[frame.MessageID]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug().Str("message_id", frame.MessageID).Msg("response for unknown call")
		return
	}

	if frame.ErrorCode != "" {
		delete(c.pending, frame.MessageID)
		c.mu.Unlock()
		p.resultCh <- callResult{err: &RPCError{Command: p.command, Code: frame.ErrorCode, Details: frame.Details}}
		return
	}

	if frame.Partial {
		var elems []json.RawMessage
		if err := json.Unmarshal(frame.Result, &elems); err != nil {
			c.logger.Warn().Err(err).Str("message_id", frame.MessageID).Msg("partial frame without array result")
		} else {
			p.parts = append(p.parts, elems...)
		}
		c.mu.Unlock()
		return
	}

	delete(c.pending, frame.MessageID)
	parts := p.parts
	c.mu.Unlock()

	result := frame.Result
	if len(parts) > 0 {
		var elems []json.RawMessage
		if len(result) > 0 {
			if err := json.Unmarshal(result, &elems); err != nil {
				c.logger.Warn().Err(err).Msg("final frame of chunked result is not an array")
			}
		}
		merged, err := json.Marshal(append(parts, elems...))
		if err == nil {
			result = merged
		}
	}
	p.resultCh <- callResult{result: result}
}

func (c *Client) dispatchEvent(evt Event) {
	c.mu.Lock()
	handlers := make([]func(Event), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(evt)
	}
}
