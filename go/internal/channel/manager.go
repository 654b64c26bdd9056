package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrAlreadyStarted is returned from Start on reuse of a manager.
var ErrAlreadyStarted = errors.New("channel manager already started")

// State describes which delivery channel, if any, is active.
type State string

const (
	StateDisconnected        State = "DISCONNECTED"
	StateConnecting          State = "CONNECTING"
	StateConnected           State = "CONNECTED"
	StateConnectedViaPolling State = "CONNECTED_VIA_POLLING"
)

// Socket is the transport channel as the manager sees it.
type Socket interface {
	Connect(ctx context.Context) error
	JoinRoom(partnerID string)
	LeaveRoom(partnerID string)
	OnDown(fn func())
	OnUp(fn func())
	Connected() bool
	Close()
}

// FallbackPoller is the polling fallback as the manager sees it.
type FallbackPoller interface {
	Start(ctx context.Context)
	Stop()
	Running() bool
}

// Manager owns the two delivery channels and enforces that exactly one is
// active at a time. Failover is one-directional: a socket failure
// activates polling, and polling stands down only when the socket comes
// back, either through its own reconnect or an explicit Reconnect call.
type Manager struct {
	socket    Socket
	poller    FallbackPoller
	partnerID string

	mu      sync.Mutex
	state   State
	baseCtx context.Context
	started bool
	stopped bool
}

// NewManager creates a manager over the given channels.
func NewManager(socket Socket, poller FallbackPoller, partnerID string) *Manager {
	return &Manager{
		socket:    socket,
		poller:    poller,
		partnerID: partnerID,
		state:     StateDisconnected,
	}
}

// Start brings up the socket channel, falling back to polling when the
// dial budget is exhausted. Transport failures are non-fatal: Start only
// returns an error when called twice or after Stop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.baseCtx = ctx
	m.state = StateConnecting
	m.mu.Unlock()

	m.socket.OnUp(m.handleSocketUp)
	m.socket.OnDown(m.handleSocketDown)
	m.socket.JoinRoom(m.partnerID)

	if err := m.socket.Connect(ctx); err != nil {
		log.Warn().Err(err).Str("partner_id", m.partnerID).
			Msg("socket channel unavailable, activating polling fallback")
		m.handleSocketDown()
	}
	return nil
}

// handleSocketUp runs when a live socket exists, including after an
// automatic reconnect. Only one channel may be active, so the poller's
// timer is cleared here.
func (m *Manager) handleSocketUp() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.state = StateConnected
	m.mu.Unlock()

	m.poller.Stop()
	log.Info().Str("partner_id", m.partnerID).Msg("socket channel active")
}

// handleSocketDown runs when the socket's reconnect budget is exhausted.
func (m *Manager) handleSocketDown() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.state = StateConnectedViaPolling
	ctx := m.baseCtx
	m.mu.Unlock()

	m.poller.Start(ctx)
}

// Reconnect makes an explicit socket attempt, the only path that demotes
// polling back to the socket channel. On failure polling keeps running.
func (m *Manager) Reconnect(ctx context.Context) error {
	if m.socket.Connected() {
		return nil
	}
	if err := m.socket.Connect(ctx); err != nil {
		log.Warn().Err(err).Str("partner_id", m.partnerID).
			Msg("explicit reconnect failed, polling fallback remains active")
		return err
	}
	return nil
}

// State reports which channel is currently active. While the transport is
// mid-auto-reconnect (dropped, retry budget not yet exhausted) neither
// channel is live, so the socket's own view downgrades CONNECTED to
// CONNECTING until the redial lands or the down signal promotes polling.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateConnected && !m.socket.Connected() {
		return StateConnecting
	}
	return m.state
}

// Stop tears down both channels and leaves the partner's room.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.state = StateDisconnected
	m.mu.Unlock()

	m.socket.LeaveRoom(m.partnerID)
	m.socket.Close()
	m.poller.Stop()
}
