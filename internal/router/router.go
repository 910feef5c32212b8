package router

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"lingocast/internal/websocket"
	"lingocast/pkg/types"
)

// Handler processes one inbound envelope for a connection.
type Handler func(ctx context.Context, conn *websocket.Connection, env *types.Envelope)

// DisconnectHandler observes a connection teardown.
type DisconnectHandler func(ctx context.Context, conn *websocket.Connection)

// Router dispatches inbound frames by their type discriminator to the
// registered handlers and owns the outbound send primitives. Unrecognized
// types are logged and ignored; the connection stays open.
type Router struct {
	registry    *websocket.Registry
	rateLimiter *RateLimiter

	mu            sync.RWMutex
	handlers      map[string][]Handler
	onDisconnects []DisconnectHandler
}

// NewRouter creates a router over the connection registry.
func NewRouter(registry *websocket.Registry, rateLimiter *RateLimiter) *Router {
	return &Router{
		registry:    registry,
		rateLimiter: rateLimiter,
		handlers:    make(map[string][]Handler),
	}
}

// RegisterHandler appends a handler for one message type.
func (r *Router) RegisterHandler(messageType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[messageType] = append(r.handlers[messageType], handler)
}

// OnDisconnect appends a handler observing connection teardowns.
func (r *Router) OnDisconnect(handler DisconnectHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDisconnects = append(r.onDisconnects, handler)
}

// HandleMessage parses one inbound frame and dispatches it. Malformed
// input is reported to the sender and otherwise ignored; a failing
// handler never blocks delivery to the remaining handlers.
func (r *Router) HandleMessage(ctx context.Context, conn *websocket.Connection, data []byte) {
	if r.rateLimiter != nil && !r.rateLimiter.Allow(conn.ID()) {
		r.SendError(conn, "message rate limit exceeded", types.ErrorTypeRateLimited)
		return
	}

	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("Connection %s sent malformed frame: %v", conn.ID(), err)
		r.SendError(conn, "malformed message payload", types.ErrorTypeInvalidPayload)
		return
	}

	if err := env.Validate(); err != nil {
		if errors.Is(err, types.ErrUnknownMessageType) {
			log.Printf("Connection %s sent unknown message type %q, ignoring", conn.ID(), env.Type)
			return
		}
		log.Printf("Connection %s sent invalid %s frame: %v", conn.ID(), env.Type, err)
		r.SendError(conn, err.Error(), types.ErrorTypeInvalidPayload)
		return
	}

	r.mu.RLock()
	handlers := append([]Handler(nil), r.handlers[env.Type]...)
	r.mu.RUnlock()

	if len(handlers) == 0 {
		log.Printf("No handler registered for message type %q, ignoring", env.Type)
		return
	}
	for _, handler := range handlers {
		r.dispatch(ctx, handler, conn, &env)
	}
}

// dispatch isolates one handler invocation so a panic cannot crash the
// connection's read loop or starve later handlers.
func (r *Router) dispatch(ctx context.Context, handler Handler, conn *websocket.Connection, env *types.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Handler for %s panicked on connection %s: %v", env.Type, conn.ID(), rec)
		}
	}()
	handler(ctx, conn, env)
}

// HandleDisconnect notifies the registered disconnect observers.
func (r *Router) HandleDisconnect(ctx context.Context, conn *websocket.Connection) {
	r.mu.RLock()
	observers := append([]DisconnectHandler(nil), r.onDisconnects...)
	r.mu.RUnlock()

	for _, observer := range observers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("Disconnect handler panicked on connection %s: %v", conn.ID(), rec)
				}
			}()
			observer(ctx, conn)
		}()
	}
}

// SendToConnection delivers one message, silently skipping a closed peer.
func (r *Router) SendToConnection(conn *websocket.Connection, message interface{}) {
	if conn == nil || !conn.IsOpen() {
		return
	}
	if err := conn.WriteJSON(message); err != nil {
		log.Printf("Failed to deliver message to %s: %v", conn.ID(), err)
	}
}

// SendError reports a failure to a single client with a coarse type.
func (r *Router) SendError(conn *websocket.Connection, message, errorType string) {
	r.SendToConnection(conn, types.ErrorMessage{
		Type:      types.MessageTypeError,
		Message:   message,
		ErrorType: errorType,
	})
}

// Broadcast delivers a message to every open connection.
func (r *Router) Broadcast(message interface{}) {
	for _, conn := range r.registry.Connections() {
		r.SendToConnection(conn, message)
	}
}

// SendToTeachers delivers a message to a session's teacher connections.
func (r *Router) SendToTeachers(sessionID string, message interface{}) {
	for _, conn := range r.registry.TeachersForSession(sessionID) {
		r.SendToConnection(conn, message)
	}
}

// SendToStudents delivers a message to every student in a session.
func (r *Router) SendToStudents(sessionID string, message interface{}) {
	for _, conn := range r.registry.StudentsForSession(sessionID) {
		r.SendToConnection(conn, message)
	}
}

// SendToStudentsByLanguage delivers a message to the session's students
// registered for one target language.
func (r *Router) SendToStudentsByLanguage(sessionID, languageCode string, message interface{}) {
	for _, conn := range r.registry.StudentsForSession(sessionID) {
		if conn.LanguageCode() != languageCode {
			continue
		}
		r.SendToConnection(conn, message)
	}
}
