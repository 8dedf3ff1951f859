// Package livefeed streams measurements and exceptions to websocket clients as JSON-RPC
// notifications, for debug UIs following requests as they happen.
package livefeed

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jkbrsn/jsonrpc"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/jkbrsn/httpscope"
)

const (
	defaultSendBuffer = 64
	defaultRecent     = 100
	maxMessageSize    = 64 * 1024
)

// Option is a functional option for the Hub struct.
type Option func(*Hub)

// WithTimeouts sets the connection deadlines.
func WithTimeouts(t Timeouts) Option {
	return func(h *Hub) { h.timeouts = t }
}

// WithLogger sets the hub logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// WithSendBuffer sets how many frames may queue per client before frames are dropped.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithRecent sets how many measurement frames are kept for MethodRecent.
func WithRecent(n int) Option {
	return func(h *Hub) {
		if n >= 0 {
			h.recentSize = n
		}
	}
}

// Hub is an http.Handler accepting websocket clients and an httpscope.Timeline and
// httpscope.ExceptionSink broadcasting to them. Slow clients lose frames rather than block
// the tracker.
type Hub struct {
	upgrader   websocket.Upgrader
	timeouts   Timeouts
	logger     zerolog.Logger
	sendBuffer int
	recentSize int

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	recentMu sync.Mutex
	recent   []MeasureFrame

	dropped atomic.Int64
}

// NewHub creates a Hub.
func NewHub(opts ...Option) (*Hub, error) {
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		timeouts:   DefaultTimeouts(),
		logger:     zerolog.Nop(),
		sendBuffer: defaultSendBuffer,
		recentSize: defaultRecent,
		clients:    make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if err := h.timeouts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid timeouts: %w", err)
	}
	return h, nil
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of frames discarded because a client fell behind.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// ServeHTTP upgrades the request to a websocket connection and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, h.sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Stringer("remote", conn.RemoteAddr()).Msg("live feed client connected")

	go c.writePump()
	c.readPump()
}

// AddMeasure broadcasts m to every client.
func (h *Hub) AddMeasure(m httpscope.Measurement) {
	frame := measureFrame(m)
	h.remember(frame)
	h.publish(MethodMeasure, frame)
}

// AddException broadcasts err to every client. A nil error is ignored.
func (h *Hub) AddException(err error) {
	if err == nil {
		return
	}
	h.publish(MethodException, ExceptionFrame{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
		Time:    time.Now(),
	})
}

// Recent returns the most recent measurement frames, oldest first.
func (h *Hub) Recent() []MeasureFrame {
	h.recentMu.Lock()
	defer h.recentMu.Unlock()
	return append([]MeasureFrame{}, h.recent...)
}

// Close disconnects every client. Clients connecting afterwards are rejected.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return nil
}

func (h *Hub) remember(f MeasureFrame) {
	if h.recentSize == 0 {
		return
	}
	h.recentMu.Lock()
	defer h.recentMu.Unlock()
	h.recent = append(h.recent, f)
	if len(h.recent) > h.recentSize {
		h.recent = append(h.recent[:0:0], h.recent[len(h.recent)-h.recentSize:]...)
	}
}

func (h *Hub) publish(method string, params any) {
	data, err := encodeNotification(method, params)
	if err != nil {
		h.logger.Error().Err(err).Msg("dropping live feed frame")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.enqueue(data) {
			h.dropped.Inc()
		}
	}
}

// unregister removes c, closing its send channel exactly once.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// handle answers one client request.
func (h *Hub) handle(msg []byte) []byte {
	var req jsonrpc.Request
	if err := req.UnmarshalJSON(msg); err != nil {
		out, _ := encodeError(nil, jsonrpc.ParseError, "Parse error")
		return out
	}

	var out []byte
	var err error
	switch req.Method {
	case MethodRecent:
		out, err = encodeResult(req.ID, h.Recent())
	default:
		out, err = encodeError(req.ID, jsonrpc.MethodNotFound, "Method not found: "+req.Method)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("method", req.Method).Msg("encoding live feed response")
		return nil
	}
	return out
}

// client is one websocket connection. Only writePump writes to conn.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// enqueue queues data without blocking. The caller holds the hub read lock, so send is open.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	t := c.hub.timeouts
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(deadline(t.Read))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(deadline(t.Read))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug().Err(err).Msg("live feed client read failed")
			}
			return
		}
		if out := c.hub.handle(msg); out != nil {
			c.hub.mu.RLock()
			if _, ok := c.hub.clients[c]; ok && !c.enqueue(out) {
				c.hub.dropped.Inc()
			}
			c.hub.mu.RUnlock()
		}
	}
}

func (c *client) writePump() {
	t := c.hub.timeouts
	var ping <-chan time.Time
	if t.PingInterval > 0 {
		ticker := time.NewTicker(t.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer func() { _ = c.conn.Close() }()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
				return
			}
			_ = c.conn.SetWriteDeadline(deadline(t.Write))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.logger.Debug().Err(err).Msg("live feed client write failed")
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline(t.Write)); err != nil {
				return
			}
		}
	}
}
