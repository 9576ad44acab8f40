// Package session owns the single persistent transport link of an
// authenticated session: connect, disconnect and the bounded reconnect
// policy. Every other component reaches the transport through a Manager,
// never by dialing on its own.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrAuth      = errors.New("session: missing or invalid token")
	ErrTransport = errors.New("session: transport unavailable")
	ErrTimeout   = errors.New("session: operation deadline exceeded")
	ErrClosed    = errors.New("session: manager closed")
)

type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
	Reconnecting State = "reconnecting"
)

// Conn is whatever the transport hands back for an open link. The manager
// only ever closes it.
type Conn interface {
	Close() error
}

// Transport dials one link for an authenticated session.
type Transport interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// VerifyFunc validates a token and returns the stable user id behind it.
// The default accepts any non-empty token as an opaque bearer credential.
type VerifyFunc func(token string) (string, error)

// Policy bounds automatic reconnection: MaxAttempts dials with exponential
// backoff starting at BaseDelay. After exhaustion the manager goes
// Disconnected and stays there until an explicit Connect.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, BaseDelay: time.Second}
}

// Event is one lifecycle transition surfaced to listeners.
type Event struct {
	State   State
	Attempt int
	Err     error
}

// Session describes the currently authenticated link.
type Session struct {
	UserID      string
	Token       string
	ConnectedAt time.Time
}

type Manager struct {
	transport Transport
	verify    VerifyFunc
	policy    Policy

	// connectMu serializes explicit Connect calls so two racing callers
	// share one dial instead of opening two links.
	connectMu sync.Mutex

	mu           sync.Mutex
	state        State
	session      *Session
	conn         Conn
	listeners    map[int]func(Event)
	nextListener int
	epoch        int // bumped on every explicit connect/disconnect to kill stale reconnect loops
	closed       bool
}

func NewManager(transport Transport, verify VerifyFunc, policy Policy) *Manager {
	if verify == nil {
		verify = func(token string) (string, error) {
			if token == "" {
				return "", ErrAuth
			}
			return token, nil
		}
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultPolicy().BaseDelay
	}
	return &Manager{
		transport: transport,
		verify:    verify,
		policy:    policy,
		state:     Disconnected,
		listeners: make(map[int]func(Event)),
	}
}

// Subscribe registers a lifecycle listener and returns its unsubscribe
// handle. Listeners run on the transitioning goroutine and must not block.
func (m *Manager) Subscribe(listener func(Event)) func() {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = listener
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) emit(event Event) {
	m.mu.Lock()
	listeners := make([]func(Event), 0, len(m.listeners))
	for _, listener := range m.listeners {
		listeners = append(listeners, listener)
	}
	m.mu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

func (m *Manager) setState(state State, attempt int, err error) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	m.emit(Event{State: state, Attempt: attempt, Err: err})
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the active session, nil when disconnected.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Connect authenticates the token and dials the transport. Calling Connect
// while connected is idempotent and returns the existing session instead of
// opening a second link; a Connect racing an in-flight Connect waits for it
// and receives its session.
func (m *Manager) Connect(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrAuth
	}
	userID, err := m.verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.state == Connected && m.session != nil {
		session := m.session
		m.mu.Unlock()
		return session, nil
	}
	m.epoch++
	epoch := m.epoch
	m.mu.Unlock()

	m.setState(Connecting, 0, nil)

	conn, err := m.transport.Dial(ctx, token)
	if err != nil {
		m.setState(Disconnected, 0, err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	session := &Session{UserID: userID, Token: token, ConnectedAt: time.Now()}
	m.mu.Lock()
	if m.closed || m.epoch != epoch {
		// Disconnect or Close superseded this dial while it was in
		// flight. The freshly opened link is redundant.
		closed := m.closed
		m.mu.Unlock()
		conn.Close()
		if closed {
			return nil, ErrClosed
		}
		return nil, ErrTransport
	}
	m.conn = conn
	m.session = session
	m.mu.Unlock()

	m.setState(Connected, 0, nil)
	return session, nil
}

// Disconnect closes the link on purpose. No reconnection is attempted.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.epoch++
	conn := m.conn
	m.conn = nil
	m.session = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.setState(Disconnected, 0, nil)
}

// Close disconnects and rejects any further Connect.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Disconnect()
}

// Do runs fn against the live link. While not connected it fails fast with
// ErrTransport; nothing is queued for later delivery.
func (m *Manager) Do(fn func(Conn) error) error {
	m.mu.Lock()
	if m.state != Connected || m.conn == nil {
		m.mu.Unlock()
		return ErrTransport
	}
	conn := m.conn
	m.mu.Unlock()

	return fn(conn)
}

// Drop reports a transport-level loss of the link and starts the bounded
// reconnect loop: Policy.MaxAttempts dials with exponential backoff from
// Policy.BaseDelay. Exhaustion lands in Disconnected with the last error
// surfaced; no further automatic attempts follow.
func (m *Manager) Drop(reason error) {
	m.mu.Lock()
	if m.state != Connected || m.closed {
		m.mu.Unlock()
		return
	}
	m.epoch++
	epoch := m.epoch
	token := ""
	if m.session != nil {
		token = m.session.Token
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()

	m.setState(Reconnecting, 0, reason)
	go m.reconnect(epoch, token)
}

func (m *Manager) reconnect(epoch int, token string) {
	delay := m.policy.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= m.policy.MaxAttempts; attempt++ {
		time.Sleep(delay)
		delay *= 2

		m.mu.Lock()
		stale := m.epoch != epoch || m.closed
		m.mu.Unlock()
		if stale {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		conn, err := m.transport.Dial(ctx, token)
		cancel()
		if err != nil {
			lastErr = err
			m.emit(Event{State: Reconnecting, Attempt: attempt, Err: err})
			continue
		}

		m.mu.Lock()
		if m.epoch != epoch || m.closed {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		if m.session != nil {
			m.session.ConnectedAt = time.Now()
		}
		m.mu.Unlock()

		m.setState(Connected, attempt, nil)
		return
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.mu.Unlock()

	m.setState(Disconnected, m.policy.MaxAttempts, lastErr)
}
