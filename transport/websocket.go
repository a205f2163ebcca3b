package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned by Emit while the connection is down.
var ErrNotConnected = errors.New("transport not connected")

const (
	defaultReconnectAttempts = 5
	defaultReconnectWait     = 500 * time.Millisecond
	defaultHandshakeTimeout  = 15 * time.Second
)

// WSConfig configures a WebSocket transport.
type WSConfig struct {
	// URL is the ws:// or wss:// endpoint of the overlay server.
	URL string
	// ReconnectAttempts bounds reconnection after a drop. Zero means the
	// default of 5; a negative value disables reconnection.
	ReconnectAttempts int
	// ReconnectWait is the base wait between attempts; attempt n waits
	// n times this value.
	ReconnectWait time.Duration
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
}

// WSTransport is the gorilla/websocket-backed Transport implementation.
type WSTransport struct {
	cfg    WSConfig
	logger *logrus.Entry

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	handlersMu   sync.RWMutex
	handlers     map[string]Handler
	onConnect    func()
	onDisconnect func(error)

	writeMu sync.Mutex
}

// NewWebSocket creates a transport for the given endpoint. The connection
// is not opened until Connect is called.
func NewWebSocket(cfg WSConfig) *WSTransport {
	if cfg.ReconnectAttempts == 0 {
		cfg.ReconnectAttempts = defaultReconnectAttempts
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = defaultReconnectWait
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}

	return &WSTransport{
		cfg:      cfg,
		logger:   logrus.WithField("component", "WSTransport"),
		handlers: make(map[string]Handler),
	}
}

// Connect dials the server and starts the read loop. Safe to call once;
// subsequent reconnection is automatic.
func (t *WSTransport) Connect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("transport closed")
	}
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	return t.dial()
}

func (t *WSTransport) dial() error {
	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	conn, _, err := dialer.Dial(t.cfg.URL, nil)
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"url":   t.cfg.URL,
			"error": err.Error(),
		}).Error("WebSocket dial failed")
		return fmt.Errorf("dial %s: %w", t.cfg.URL, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return errors.New("transport closed")
	}
	t.conn = conn
	t.connected = true
	t.mu.Unlock()

	t.logger.WithField("url", t.cfg.URL).Info("WebSocket connected")

	go t.readLoop(conn)

	t.handlersMu.RLock()
	onConnect := t.onConnect
	t.handlersMu.RUnlock()
	if onConnect != nil {
		onConnect()
	}

	return nil
}

// Emit sends one event frame. Payloads are serialized with encoding/json;
// a nil payload produces a bare event with no data field.
func (t *WSTransport) Emit(event string, payload any) error {
	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", event, err)
		}
		data = encoded
	}

	frame, err := json.Marshal(Event{Name: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", event, err)
	}

	t.mu.Lock()
	conn := t.conn
	connected := t.connected
	t.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}

	t.logger.WithFields(logrus.Fields{
		"event":      event,
		"frame_size": len(frame),
	}).Debug("Event emitted")

	return nil
}

// RegisterHandler sets the handler for an event name.
func (t *WSTransport) RegisterHandler(event string, handler Handler) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[event] = handler
}

// OnConnect sets the callback fired after every successful (re)connect.
func (t *WSTransport) OnConnect(fn func()) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.onConnect = fn
}

// OnDisconnect sets the callback fired when the connection drops.
func (t *WSTransport) OnDisconnect(fn func(error)) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.onDisconnect = fn
}

// Connected reports whether the connection is currently up.
func (t *WSTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Close tears down the connection and disables reconnection.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.connected = false
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.handleDrop(err)
			return
		}

		var ev Event
		if err := json.Unmarshal(frame, &ev); err != nil {
			t.logger.WithFields(logrus.Fields{
				"frame_size": len(frame),
				"error":      err.Error(),
			}).Warn("Dropping unparseable frame")
			continue
		}

		t.handlersMu.RLock()
		handler := t.handlers[ev.Name]
		t.handlersMu.RUnlock()

		if handler == nil {
			t.logger.WithField("event", ev.Name).Debug("No handler for event")
			continue
		}
		handler(ev.Data)
	}
}

// handleDrop marks the connection down, notifies the session layer, and
// runs the bounded reconnection loop.
func (t *WSTransport) handleDrop(cause error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.connected = false
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.mu.Unlock()

	t.logger.WithField("reason", cause.Error()).Info("WebSocket disconnected")

	t.handlersMu.RLock()
	onDisconnect := t.onDisconnect
	t.handlersMu.RUnlock()
	if onDisconnect != nil {
		onDisconnect(cause)
	}

	if t.cfg.ReconnectAttempts < 0 {
		return
	}

	for attempt := 1; attempt <= t.cfg.ReconnectAttempts; attempt++ {
		time.Sleep(time.Duration(attempt) * t.cfg.ReconnectWait)

		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}

		t.logger.WithFields(logrus.Fields{
			"attempt":      attempt,
			"max_attempts": t.cfg.ReconnectAttempts,
		}).Info("Reconnecting")

		if err := t.dial(); err == nil {
			return
		}
	}

	t.logger.WithField("attempts", t.cfg.ReconnectAttempts).Error("Reconnection attempts exhausted")
}
