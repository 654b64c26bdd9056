package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/openfleet/partner-agent/go/internal/offer"
	"github.com/rs/zerolog/log"
)

// Wire events exchanged with the dispatch backend.
const (
	EventJoinDriver    = "join-driver"
	EventLeaveDriver   = "leave-driver"
	EventOrderAssigned = "order-assigned"
)

// ErrChannelClosed is returned from Connect after Close.
var ErrChannelClosed = errors.New("transport channel closed")

// Frame is the JSON envelope for every message on the socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// AssignedHandler receives one server-pushed assignment event.
type AssignedHandler func(offer.PushAssignment)

// Config holds configuration for the transport channel.
type Config struct {
	URL          string
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
	DialTimeout  time.Duration
	MaxRetries   int
	BackoffBase  time.Duration
	// Clock defaults to the real clock. Tests inject a fake.
	Clock clockwork.Clock
}

// DefaultConfig returns default transport configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
		DialTimeout:  10 * time.Second,
		MaxRetries:   3,
		BackoffBase:  time.Second,
	}
}

// Channel maintains at most one live WebSocket connection to the dispatch
// backend. Room joins scope server pushes to this partner and are replayed
// automatically after a reconnect. On unexpected disconnect the channel
// retries with exponential backoff; when the retry budget is exhausted it
// signals the down handler so the owner can fall back to polling.
type Channel struct {
	cfg    Config
	clock  clockwork.Clock
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	send      chan []byte
	quit      chan struct{}
	connected bool
	closed    bool
	rooms     map[string]bool
	handlers  map[uuid.UUID]AssignedHandler
	onDown    func()
	onUp      func()
}

// NewChannel creates a disconnected channel.
func NewChannel(cfg Config) *Channel {
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Channel{
		cfg:   cfg,
		clock: cfg.Clock,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
		},
		rooms:    make(map[string]bool),
		handlers: make(map[uuid.UUID]AssignedHandler),
	}
}

// OnDown registers the callback fired when the reconnect budget is
// exhausted and the channel gives up.
func (c *Channel) OnDown(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDown = fn
}

// OnUp registers the callback fired whenever a live connection is
// established, including after an automatic reconnect.
func (c *Channel) OnUp(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUp = fn
}

// Connect dials the backend, retrying up to the configured budget with
// exponential backoff. Returns only once a live connection exists or the
// budget is exhausted.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dialWithRetry(ctx)
	if err != nil {
		return err
	}
	c.attach(conn)
	return nil
}

// Connected reports whether a live connection exists.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Channel) dialWithRetry(ctx context.Context) (*websocket.Conn, error) {
	backoff := c.cfg.BackoffBase
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err == nil {
			log.Info().Str("url", c.cfg.URL).Int("attempt", attempt).Msg("transport connected")
			return conn, nil
		}
		lastErr = err
		log.Warn().
			Err(err).
			Str("url", c.cfg.URL).
			Int("attempt", attempt).
			Int("max_attempts", c.cfg.MaxRetries).
			Msg("transport dial failed")
		if attempt == c.cfg.MaxRetries {
			break
		}
		select {
		case <-c.clock.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("dial %s after %d attempts: %w", c.cfg.URL, c.cfg.MaxRetries, lastErr)
}

// attach takes ownership of a freshly dialed connection, starts the pumps,
// and replays room joins so the server re-scopes pushes to this partner.
func (c *Channel) attach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.connected = true
	send := make(chan []byte, 64)
	quit := make(chan struct{})
	c.send = send
	c.quit = quit
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	onUp := c.onUp
	c.mu.Unlock()

	go c.writePump(conn, send, quit)
	go c.readPump(conn, quit)

	for _, id := range rooms {
		c.enqueueFrame(EventJoinDriver, id)
	}
	if onUp != nil {
		onUp()
	}
}

// JoinRoom scopes server push events to this partner. Idempotent; the join
// is replayed after every reconnect.
func (c *Channel) JoinRoom(partnerID string) {
	c.mu.Lock()
	if c.rooms[partnerID] {
		c.mu.Unlock()
		return
	}
	c.rooms[partnerID] = true
	connected := c.connected
	c.mu.Unlock()
	if connected {
		c.enqueueFrame(EventJoinDriver, partnerID)
	}
}

// LeaveRoom stops server pushes for this partner. Idempotent.
func (c *Channel) LeaveRoom(partnerID string) {
	c.mu.Lock()
	if !c.rooms[partnerID] {
		c.mu.Unlock()
		return
	}
	delete(c.rooms, partnerID)
	connected := c.connected
	c.mu.Unlock()
	if connected {
		c.enqueueFrame(EventLeaveDriver, partnerID)
	}
}

// OnAssigned registers a handler for server-pushed assignment events and
// returns its unsubscribe function. Unsubscribing twice is a no-op.
func (c *Channel) OnAssigned(h AssignedHandler) func() {
	id := uuid.New()
	c.mu.Lock()
	c.handlers[id] = h
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

// enqueueFrame buffers a frame for the write pump. The send channel is
// never closed, only abandoned on teardown, so a concurrent detach or
// Close cannot turn this send into a panic; a frame enqueued on a dead
// connection's buffer is simply dropped with it.
func (c *Channel) enqueueFrame(event, data string) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	frame, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		return
	}
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()
	if send == nil {
		return
	}
	select {
	case send <- frame:
	default:
		log.Warn().Str("event", event).Msg("transport send buffer full, dropping frame")
	}
}

// writePump owns all writes to the connection, including ping keepalives.
// It exits on the quit signal, not by the send channel closing.
func (c *Channel) writePump(conn *websocket.Conn, send <-chan []byte, quit <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-quit:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Msg("transport write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Msg("transport ping failed")
				return
			}
		}
	}
}

// readPump dispatches incoming frames in arrival order. When the read loop
// dies and the channel was not explicitly closed, it drives the automatic
// reconnect.
func (c *Channel) readPump(conn *websocket.Conn, quit chan struct{}) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("transport connection lost")
			}
			c.detach(conn, quit)
			return
		}
		c.dispatch(data)
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
}

func (c *Channel) dispatch(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Warn().Err(err).Msg("transport received malformed frame")
		return
	}
	switch frame.Event {
	case EventOrderAssigned:
		var raw offer.PushAssignment
		if err := json.Unmarshal(frame.Data, &raw); err != nil {
			log.Warn().Err(err).Msg("transport received malformed assignment payload")
			return
		}
		c.mu.Lock()
		handlers := make([]AssignedHandler, 0, len(c.handlers))
		for _, h := range c.handlers {
			handlers = append(handlers, h)
		}
		c.mu.Unlock()
		for _, h := range handlers {
			h(raw)
		}
	default:
		log.Debug().Str("event", frame.Event).Msg("transport ignoring event")
	}
}

// detach tears down the dead connection and attempts the automatic
// reconnect. On budget exhaustion the down handler fires; a later explicit
// Connect can still revive the channel.
func (c *Channel) detach(conn *websocket.Conn, quit chan struct{}) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer connection already replaced this one, or Close beat us
		// here and already signalled quit.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	if c.quit == quit {
		c.quit = nil
		c.send = nil
	}
	close(quit)
	closed := c.closed
	onDown := c.onDown
	c.mu.Unlock()

	if closed {
		return
	}

	newConn, err := c.dialWithRetry(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("transport reconnect budget exhausted, signalling fallback")
		if onDown != nil {
			onDown()
		}
		return
	}
	c.attach(newConn)
}

// Close tears the channel down and leaves no running goroutines. Further
// Connect calls fail with ErrChannelClosed.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
	c.send = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	log.Info().Msg("transport channel closed")
}
