// Package conn owns the single live socket of a session: dialing,
// reading, writing and the fixed-delay reconnect policy.
package conn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/nhle/hrnotify/internal/logging"
	"github.com/nhle/hrnotify/internal/metrics"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second

	// DefaultReconnectDelay is used when the manager is built with a
	// non-positive delay.
	DefaultReconnectDelay = 3 * time.Second
)

var (
	// ErrNotOpen is returned by Send while no socket is open. Nothing is
	// queued.
	ErrNotOpen = errors.New("connection not open")

	// ErrAlreadyStarted is returned by a second Connect.
	ErrAlreadyStarted = errors.New("connection already started")

	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("connection manager closed")
)

// State is the lifecycle state of the socket.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Manager keeps at most one socket open and at most one reconnect
// pending. After an unexpected close or a failed dial it waits the
// fixed delay and dials again, until Close is called.
type Manager struct {
	dialer Dialer
	delay  time.Duration

	mu      sync.Mutex
	url     string
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	closed  bool
	conn    *websocket.Conn
	gen     uint64
	timer   *time.Timer
	state   State

	writeMu sync.Mutex

	messages chan []byte
	states   chan State
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewManager returns a manager that dials with d and waits delay
// between reconnect attempts. A nil dialer uses a gorilla dialer.
func NewManager(d Dialer, delay time.Duration) *Manager {
	if d == nil {
		d = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
	}
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Manager{
		dialer:   d,
		delay:    delay,
		messages: make(chan []byte, 64),
		states:   make(chan State, 16),
		done:     make(chan struct{}),
	}
}

// BuildURL appends the bearer token to the socket endpoint as the
// "token" query parameter.
func BuildURL(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("parse socket url: unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect starts the connection lifecycle in the background and returns
// immediately. ctx bounds every dial; once it is done no further
// reconnects are scheduled.
func (m *Manager) Connect(ctx context.Context, rawURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.url = rawURL
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.setStateLocked(StateConnecting)

	m.wg.Add(1)
	go m.dial()
	return nil
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Messages returns inbound payloads. Payloads that are not valid JSON
// never appear here. The channel is closed by Close.
func (m *Manager) Messages() <-chan []byte {
	return m.messages
}

// States returns state transitions. A slow reader may miss intermediate
// transitions; State is authoritative. The channel is closed by Close.
func (m *Manager) States() <-chan State {
	return m.states
}

// Send writes v as one JSON text message. It returns ErrNotOpen unless
// the socket is open.
func (m *Manager) Send(v any) error {
	m.mu.Lock()
	c := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || c == nil {
		return ErrNotOpen
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding outbound message: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := c.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close cancels any pending reconnect, closes the socket and waits for
// the reader to exit. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
	}

	var err error
	if m.conn != nil {
		m.writeMu.Lock()
		_ = m.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		m.writeMu.Unlock()
		err = m.conn.Close()
		m.conn = nil
	}
	m.setStateLocked(StateClosed)
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()
	close(m.messages)
	close(m.states)

	logging.Info().Msg("socket closed")
	return err
}

// dial makes one connection attempt. The caller has done wg.Add.
func (m *Manager) dial() {
	defer m.wg.Done()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	ctx, rawURL := m.ctx, m.url
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	c, resp, err := m.dialer.DialContext(dialCtx, rawURL, nil)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		if c != nil {
			c.Close()
		}
		return
	}

	if err != nil {
		metrics.DialErrors.Inc()
		ev := logging.Warn().Err(err)
		if resp != nil {
			ev = ev.Int("status", resp.StatusCode)
		}
		ev.Msg("socket dial failed")

		if ctx.Err() != nil {
			m.setStateLocked(StateClosed)
			return
		}
		m.scheduleReconnectLocked()
		return
	}

	m.gen++
	m.conn = c
	m.setStateLocked(StateOpen)
	logging.Info().Msg("socket open")

	m.wg.Add(1)
	go m.readLoop(c, m.gen)
}

func (m *Manager) readLoop(c *websocket.Conn, gen uint64) {
	defer m.wg.Done()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}

		if !json.Valid(data) {
			metrics.FramesDropped.WithLabelValues("invalid_json").Inc()
			logging.Debug().Int("bytes", len(data)).Msg("dropping non-JSON payload")
			continue
		}

		select {
		case m.messages <- data:
		case <-m.done:
			return
		}
	}
}

// handleClose reacts to the end of connection gen. Closes of a
// connection that has already been replaced are ignored.
func (m *Manager) handleClose(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || gen != m.gen || m.conn == nil {
		return
	}

	m.conn.Close()
	m.conn = nil

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logging.Info().Err(err).Msg("socket closed by peer")
	} else {
		logging.Warn().Err(err).Msg("socket lost")
	}

	if m.ctx.Err() != nil {
		m.setStateLocked(StateClosed)
		return
	}
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the reconnect timer unless one is
// already pending. Must be called with mu held.
func (m *Manager) scheduleReconnectLocked() {
	if m.timer != nil {
		return
	}
	m.setStateLocked(StateConnecting)
	metrics.ReconnectsScheduled.Inc()
	logging.Debug().Dur("delay", m.delay).Msg("reconnect scheduled")

	m.timer = time.AfterFunc(m.delay, func() {
		m.mu.Lock()
		m.timer = nil
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.wg.Add(1)
		m.mu.Unlock()

		m.dial()
	})
}

// setStateLocked records s and publishes it. Must be called with mu held.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	metrics.ConnectionState.Set(float64(s))

	select {
	case m.states <- s:
	default:
	}
}
