package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lingocast/pkg/types"
)

// wire is the subset of *websocket.Conn the wrapper needs, kept as an
// interface so tests can substitute an in-memory peer.
type wire interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection wraps one client socket. All writes go through a single
// writer goroutine; WebSocket writes must be serialized.
type Connection struct {
	id           string
	conn         wire
	writeCh      chan []byte
	writeTimeout time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu           sync.RWMutex
	registered   bool
	role         string
	languageCode string
	sessionID    string
	settings     types.ConnectionSettings
	awaitingPong bool
	lastPong     time.Time
}

// NewConnection wraps an upgraded socket and starts its writer goroutine.
func NewConnection(id string, conn wire, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           id,
		conn:         conn,
		writeCh:      make(chan []byte, 100),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		lastPong:     time.Now(),
	}
	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues a message for the writer goroutine. It fails fast on a
// closed connection and on a full write queue rather than blocking the
// caller's loop.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears the socket down exactly once. Safe to call from any
// goroutine and after a previous Close.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// IsOpen reports whether the connection is still usable for sends.
func (c *Connection) IsOpen() bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
		return true
	}
}

// Done is closed when the connection is torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// ID returns the connection id assigned on socket open.
func (c *Connection) ID() string {
	return c.id
}

// SetCredentials records the role, language and settings from a register
// frame. sessionID binds the connection to its classroom session.
func (c *Connection) SetCredentials(role, languageCode, sessionID string, settings types.ConnectionSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
	c.languageCode = languageCode
	c.sessionID = sessionID
	c.settings = settings
	c.registered = true
}

// IsRegistered reports whether a register frame was processed.
func (c *Connection) IsRegistered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registered
}

// Role returns the registered role, or "" before registration.
func (c *Connection) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// LanguageCode returns the registered language, or "" before registration.
func (c *Connection) LanguageCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.languageCode
}

// SessionID returns the bound session id, or "" before registration.
func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Settings returns the client preferences from registration.
func (c *Connection) Settings() types.ConnectionSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Ping sends an application-level heartbeat ping and marks the connection
// as owing a pong.
func (c *Connection) Ping() error {
	c.mu.Lock()
	c.awaitingPong = true
	c.mu.Unlock()

	return c.WriteJSON(types.HeartbeatPingMessage{
		Type:      types.MessageTypeHeartbeatPing,
		Timestamp: time.Now(),
	})
}

// PongReceived clears the outstanding-pong flag.
func (c *Connection) PongReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.awaitingPong = false
	c.lastPong = time.Now()
}

// AwaitingPong reports whether the previous ping is still unanswered.
func (c *Connection) AwaitingPong() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.awaitingPong
}

// LastPong returns when the connection last answered a ping.
func (c *Connection) LastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}
