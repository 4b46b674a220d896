// Package realtime implements the client half of the realtime wire:
// a websocket transport with reconnection and a status surface the
// session layer can observe.
package realtime

import (
	"fmt"
	"sync"
	"time"

	"teamchat/internal/websocket"
	"teamchat/pkg/logger"

	gorillaws "github.com/gorilla/websocket"
)

// Status is the transport connection state.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusReconnecting Status = "reconnecting"
)

const (
	defaultBaseDelay = time.Second
	maxRetries       = 5
)

// Handler receives inbound events from the socket.
type Handler func(event *websocket.Event)

// StatusListener observes connection state changes.
type StatusListener func(status Status)

// Transport is a reconnecting websocket connection scoped to one chat.
// Each instance owns exactly one connection; there is no shared
// package-level socket.
type Transport struct {
	url    string
	chatID string
	token  string

	dialer    *gorillaws.Dialer
	baseDelay time.Duration

	handler  Handler
	onStatus StatusListener

	mu       sync.Mutex
	conn     *gorillaws.Conn
	status   Status
	attempts int
	closed   bool

	// writeMu serializes socket writes; gorilla allows at most one
	// concurrent writer per connection.
	writeMu sync.Mutex
}

// Option configures a Transport.
type Option func(*Transport)

// WithBaseDelay overrides the backoff base delay.
func WithBaseDelay(d time.Duration) Option {
	return func(t *Transport) { t.baseDelay = d }
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *gorillaws.Dialer) Option {
	return func(t *Transport) { t.dialer = d }
}

// NewTransport creates a transport for one chat. handler receives
// every inbound event; onStatus may be nil.
func NewTransport(url, chatID, token string, handler Handler, onStatus StatusListener, opts ...Option) *Transport {
	t := &Transport{
		url:       url,
		chatID:    chatID,
		token:     token,
		dialer:    gorillaws.DefaultDialer,
		baseDelay: defaultBaseDelay,
		handler:   handler,
		onStatus:  onStatus,
		status:    StatusDisconnected,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Status returns the current connection state.
func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Connect dials the server and starts the read loop. On success the
// retry counter resets and a join-chat event is sent so the server
// subscribes this connection to the chat room.
func (t *Transport) Connect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	if t.status == StatusConnected || t.status == StatusConnecting {
		t.mu.Unlock()
		return nil
	}
	t.setStatusLocked(StatusConnecting)
	t.mu.Unlock()

	url := t.url
	if t.token != "" {
		url = fmt.Sprintf("%s?token=%s", t.url, t.token)
	}
	conn, _, err := t.dialer.Dial(url, nil)
	if err != nil {
		t.mu.Lock()
		t.setStatusLocked(StatusDisconnected)
		t.mu.Unlock()
		t.scheduleReconnect()
		return fmt.Errorf("failed to dial %s: %w", t.url, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.attempts = 0
	t.setStatusLocked(StatusConnected)
	t.mu.Unlock()

	go t.readLoop(conn)

	// Join on every (re)connect; the subscription does not survive the
	// old socket.
	t.Send(&websocket.Event{Type: websocket.EventJoinChat, ChatID: t.chatID})
	return nil
}

func (t *Transport) readLoop(conn *gorillaws.Conn) {
	for {
		var event websocket.Event
		if err := conn.ReadJSON(&event); err != nil {
			t.mu.Lock()
			interrupted := t.conn == conn && !t.closed
			if interrupted {
				t.conn = nil
				t.setStatusLocked(StatusDisconnected)
			}
			t.mu.Unlock()

			if interrupted {
				logger.WithError(err).Warn("Realtime connection lost")
				t.scheduleReconnect()
			}
			return
		}
		if t.handler != nil {
			t.handler(&event)
		}
	}
}

// scheduleReconnect arms the next dial attempt with exponential
// backoff. After maxRetries consecutive failures the transport goes
// terminally disconnected until Connect is called again by hand.
func (t *Transport) scheduleReconnect() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.attempts++
	attempt := t.attempts
	if attempt > maxRetries {
		t.setStatusLocked(StatusDisconnected)
		t.mu.Unlock()
		logger.WithFields(map[string]interface{}{
			"chat_id":  t.chatID,
			"attempts": attempt - 1,
		}).Error("Realtime reconnection abandoned")
		return
	}
	t.setStatusLocked(StatusReconnecting)
	t.mu.Unlock()

	delay := t.backoffDelay(attempt)
	logger.WithFields(map[string]interface{}{
		"chat_id": t.chatID,
		"attempt": attempt,
		"delay":   delay.String(),
	}).Info("Scheduling realtime reconnect")

	time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.closed || t.status == StatusConnected {
			t.mu.Unlock()
			return
		}
		t.status = StatusDisconnected // let Connect proceed
		t.mu.Unlock()
		t.Connect()
	})
}

// backoffDelay doubles per attempt: base*2, base*4 ... base*32.
func (t *Transport) backoffDelay(attempt int) time.Duration {
	return t.baseDelay * (1 << uint(attempt))
}

// Send writes an event to the socket. When the connection is not open
// the event is silently dropped; realtime traffic is best-effort and
// the REST API remains the source of truth.
func (t *Transport) Send(event *websocket.Event) {
	t.mu.Lock()
	conn := t.conn
	open := t.status == StatusConnected && conn != nil
	t.mu.Unlock()

	if !open {
		return
	}
	t.writeMu.Lock()
	err := conn.WriteJSON(event)
	t.writeMu.Unlock()
	if err != nil {
		logger.WithError(err).Debug("Dropped outbound realtime event")
	}
}

// Close tears the transport down for good; no reconnects follow.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.setStatusLocked(StatusDisconnected)
	t.mu.Unlock()

	if conn != nil {
		t.writeMu.Lock()
		conn.WriteMessage(gorillaws.CloseMessage,
			gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}

// setStatusLocked must be called with t.mu held.
func (t *Transport) setStatusLocked(status Status) {
	if t.status == status {
		return
	}
	t.status = status
	if t.onStatus != nil {
		// Listener runs outside the lock.
		go t.onStatus(status)
	}
}
