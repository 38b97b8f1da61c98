package channel

import (
	"fmt"
	"sync"
	"time"

	"artflow-sync/internal/domain"
	"artflow-sync/internal/errors"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Identity names the (project, file, user) triple a socket belongs to.
type Identity struct {
	UserID    string
	ProjectID string
	FileID    string
}

func (id Identity) complete() error {
	if id.UserID == "" {
		return errors.ErrMissingUser
	}
	if id.ProjectID == "" || id.FileID == "" {
		return errors.ErrMissingProject
	}
	return nil
}

const defaultMaxReconnects = 5

var defaultBackoff = 3 * time.Second

// Transport owns exactly one websocket for its identity. It dials, detects
// loss, and reconnects with a bounded number of attempts at a fixed
// interval. An explicit Close suppresses every future reconnect.
type Transport struct {
	endpoint string
	identity Identity

	dialer       websocket.Dialer
	maxAttempts  int
	retryBackoff backoff.BackOff

	mu             sync.Mutex
	conn           *websocket.Conn
	state          domain.ConnectionState
	attempts       int
	cleaning       bool
	reconnectTimer *time.Timer
	lastErr        error

	onFrame func([]byte)
	onOpen  func() []byte // returns the init handshake frame to send
	onState func(domain.ConnectionState)

	log *logrus.Entry
}

// TransportOptions tune reconnect behavior; zero values take the defaults
// (5 attempts, 3s fixed backoff).
type TransportOptions struct {
	MaxAttempts      int
	ReconnectBackoff time.Duration
	HandshakeTimeout time.Duration
}

func NewTransport(endpoint string, identity Identity, opts TransportOptions) (*Transport, error) {
	if err := identity.complete(); err != nil {
		return nil, err
	}

	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = defaultMaxReconnects
	}
	if opts.ReconnectBackoff == 0 {
		opts.ReconnectBackoff = defaultBackoff
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}

	return &Transport{
		endpoint:     endpoint,
		identity:     identity,
		dialer:       websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		maxAttempts:  opts.MaxAttempts,
		retryBackoff: backoff.NewConstantBackOff(opts.ReconnectBackoff),
		state:        domain.StateClosed,
		log: logrus.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"userId":   identity.UserID,
		}),
	}, nil
}

// Open starts connecting. It is idempotent: a call while the transport is
// already Connecting or Open is a no-op.
func (t *Transport) Open() {
	t.mu.Lock()
	if t.cleaning || t.state == domain.StateConnecting || t.state == domain.StateOpen {
		t.mu.Unlock()
		return
	}
	t.setStateLocked(domain.StateConnecting)
	t.mu.Unlock()

	go t.connect()
}

func (t *Transport) connect() {
	conn, resp, err := t.dialer.Dial(t.endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	t.mu.Lock()
	if t.cleaning {
		t.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		t.log.Warnf("dial failed: %v", err)
		t.setStateLocked(domain.StateClosed)
		t.scheduleReconnectLocked()
		t.mu.Unlock()
		return
	}

	t.conn = conn
	t.attempts = 0
	t.retryBackoff.Reset()
	t.setStateLocked(domain.StateOpen)

	var initFrame []byte
	if t.onOpen != nil {
		initFrame = t.onOpen()
	}
	t.mu.Unlock()

	if initFrame != nil {
		if err := t.write(initFrame); err != nil {
			t.log.Warnf("init handshake failed: %v", err)
		}
	}

	go t.readLoop(conn)
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Warnf("read error: %v", err)
			}
			t.handleDrop(conn)
			return
		}
		if t.onFrame != nil {
			t.onFrame(data)
		}
	}
}

// handleDrop runs when a socket dies underneath us. A deliberate Close has
// already set the cleaning flag, so only unexpected losses reconnect.
func (t *Transport) handleDrop(conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != conn {
		// A stale read loop from a socket we already replaced.
		return
	}
	t.conn.Close()
	t.conn = nil

	if t.cleaning {
		t.setStateLocked(domain.StateClosed)
		return
	}

	t.setStateLocked(domain.StateClosed)
	t.scheduleReconnectLocked()
}

func (t *Transport) scheduleReconnectLocked() {
	if t.cleaning {
		return
	}
	if t.attempts >= t.maxAttempts {
		t.lastErr = errors.ErrMaxReconnects
		t.setStateLocked(domain.StateFailed)
		t.log.Error("maximum reconnection attempts reached")
		return
	}

	t.attempts++
	t.setStateLocked(domain.StateReconnecting)
	wait := t.retryBackoff.NextBackOff()
	t.log.Infof("scheduling reconnect %d/%d in %s", t.attempts, t.maxAttempts, wait)
	t.reconnectTimer = time.AfterFunc(wait, func() {
		t.mu.Lock()
		if t.cleaning || t.state != domain.StateReconnecting {
			t.mu.Unlock()
			return
		}
		t.setStateLocked(domain.StateConnecting)
		t.mu.Unlock()
		t.connect()
	})
}

// Send writes one frame. Transport-level failures are non-fatal: the frame
// is dropped and logged, the caller is never blocked or handed an error.
func (t *Transport) Send(frame []byte) {
	if err := t.write(frame); err != nil {
		t.log.Warnf("dropping frame: %v", err)
	}
}

func (t *Transport) write(frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	state := t.state
	t.mu.Unlock()

	if conn == nil || state != domain.StateOpen {
		return fmt.Errorf("send while %s", state)
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// BeginClose sets the cleaning flag and cancels any pending reconnect
// while keeping the socket usable, so a final flush can still go out.
func (t *Transport) BeginClose() {
	t.mu.Lock()
	t.cleaning = true
	if t.reconnectTimer != nil {
		t.reconnectTimer.Stop()
		t.reconnectTimer = nil
	}
	t.mu.Unlock()
}

// Close tears the socket down for good. The cleaning flag is set before
// the socket is released so no reconnect can race the close.
func (t *Transport) Close() {
	t.mu.Lock()
	t.cleaning = true
	if t.reconnectTimer != nil {
		t.reconnectTimer.Stop()
		t.reconnectTimer = nil
	}
	conn := t.conn
	t.conn = nil
	t.setStateLocked(domain.StateClosed)
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// State returns the current connection state.
func (t *Transport) State() domain.ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the terminal connection error, or nil.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Attempts returns the reconnect attempt counter, reset on every
// successful open.
func (t *Transport) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

func (t *Transport) setStateLocked(s domain.ConnectionState) {
	if t.state == s {
		return
	}
	t.state = s
	if t.onState != nil {
		go t.onState(s)
	}
}
