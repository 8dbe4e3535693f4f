package runtime

import (
	"chat-session/contract"
	"chat-session/domain"
	"chat-session/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ConnectionStatus is a consistent read of the connection state.
// Epoch increases on every successful connection, so a reader can tell that
// the transport was lost and replaced between two observations.
type ConnectionStatus struct {
	State domain.ConnectivityState
	Epoch uint64
}

// ConnectionManager owns the transport connection of one logged-in user.
// It is created on login and closed on logout, nothing else shares the transport.
//
// On an unexpected drop it waits a fixed delay and redials, again and again,
// until the connection is back or Disconnect is called. Run drives that loop.
type ConnectionManager struct {
	mu             sync.Mutex
	log            *slog.Logger
	dialer         contract.Dialer
	reconnectDelay time.Duration
	state          domain.ConnectivityState
	epoch          uint64
	transport      contract.Transport
	wanted         bool
	generation     uint64 // bumped by every dial and every Disconnect
	changed        chan struct{}
	retry          chan struct{}
}

func NewConnectionManager(log *slog.Logger, dialer contract.Dialer, reconnectDelay time.Duration) *ConnectionManager {
	return &ConnectionManager{
		log:            log,
		dialer:         dialer,
		reconnectDelay: reconnectDelay,
		state:          domain.Disconnected,
		changed:        make(chan struct{}, 1),
		retry:          make(chan struct{}, 1),
	}
}

// Connect dials the transport unless already connected or connecting.
// A failed dial is returned and also scheduled for retry.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.wanted = true
	if m.state != domain.Disconnected {
		m.mu.Unlock()
		return nil
	}
	m.generation++
	generation := m.generation
	m.setStateLocked(domain.Connecting)
	m.mu.Unlock()

	t, err := m.dialer.Dial(ctx)

	m.mu.Lock()
	if generation != m.generation {
		// Disconnect, possibly followed by another Connect, happened while dialing
		m.mu.Unlock()
		if t != nil {
			_ = t.Close()
		}
		return nil
	}
	if err != nil {
		m.setStateLocked(domain.Disconnected)
		wanted := m.wanted
		m.mu.Unlock()
		if wanted {
			m.scheduleRetry()
		}
		return fmt.Errorf("dial transport: %w", err)
	}
	m.transport = t
	m.epoch++
	m.setStateLocked(domain.Connected)
	m.mu.Unlock()

	go m.watch(t)
	return nil
}

// Disconnect closes the transport and stops reconnecting.
func (m *ConnectionManager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	m.wanted = false
	m.generation++
	t := m.transport
	m.transport = nil
	if m.state != domain.Disconnected {
		m.setStateLocked(domain.Disconnected)
	}
	m.mu.Unlock()

	if t == nil {
		return nil
	}
	if err := t.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// Status returns the current state and connection epoch.
func (m *ConnectionManager) Status() ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ConnectionStatus{State: m.state, Epoch: m.epoch}
}

func (m *ConnectionManager) IsConnected() bool {
	return m.Status().State == domain.Connected
}

// Changed is signalled after every state transition. Signals coalesce:
// readers must call Status to learn where the connection stands.
func (m *ConnectionManager) Changed() <-chan struct{} {
	return m.changed
}

// Publish sends payload if connected. While disconnected the payload is dropped
// without error, commands are never queued.
func (m *ConnectionManager) Publish(ctx context.Context, destination string, payload []byte) error {
	t := m.current()
	if t == nil {
		m.log.Debug("Not connected, dropping outbound payload", "destination", destination)
		return nil
	}
	if err := t.Publish(ctx, destination, payload); err != nil {
		return fmt.Errorf("publish %s: %w", destination, err)
	}
	return nil
}

// Subscribe opens a subscription on the live transport.
func (m *ConnectionManager) Subscribe(ctx context.Context, destination string) (contract.Subscription, error) {
	t := m.current()
	if t == nil {
		return nil, errors.ErrNotConnected
	}
	sub, err := t.Subscribe(ctx, destination)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", destination, err)
	}
	return sub, nil
}

// Run keeps the connection alive: each retry signal waits the fixed delay and redials.
func (m *ConnectionManager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("Stopping connection manager")
			return ctx.Err()
		case <-m.retry:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.reconnectDelay):
		}

		m.mu.Lock()
		redial := m.wanted && m.state == domain.Disconnected
		m.mu.Unlock()
		if !redial {
			continue
		}
		m.log.Info("Reconnecting transport")
		if err := m.Connect(ctx); err != nil {
			m.log.Warn("Reconnection failed", "error", err, "retry_in", m.reconnectDelay)
		}
	}
}

func (m *ConnectionManager) current() contract.Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.Connected {
		return nil
	}
	return m.transport
}

func (m *ConnectionManager) watch(t contract.Transport) {
	<-t.Done()

	m.mu.Lock()
	if m.transport != t {
		m.mu.Unlock()
		return
	}
	m.transport = nil
	m.setStateLocked(domain.Disconnected)
	wanted := m.wanted
	m.mu.Unlock()

	m.log.Warn("Transport connection lost")
	if wanted {
		m.scheduleRetry()
	}
}

func (m *ConnectionManager) setStateLocked(state domain.ConnectivityState) {
	m.log.Info("Connectivity changed", "from", m.state.String(), "to", state.String())
	m.state = state
	select {
	case m.changed <- struct{}{}:
	default:
	}
}

func (m *ConnectionManager) scheduleRetry() {
	select {
	case m.retry <- struct{}{}:
	default:
	}
}
