package websocket

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lingocast/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Classroom clients connect from arbitrary school networks.
		// Production deployments should restrict origins.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// MessageSink consumes inbound frames and disconnect events. The router
// implements it.
type MessageSink interface {
	HandleMessage(ctx context.Context, conn *Connection, data []byte)
	HandleDisconnect(ctx context.Context, conn *Connection)
}

// Handler upgrades HTTP requests to WebSocket connections and runs each
// connection's read loop.
type Handler struct {
	registry     *Registry
	sink         MessageSink
	writeTimeout time.Duration
}

// NewHandler creates a WebSocket handler over the registry and sink.
func NewHandler(registry *Registry, sink MessageSink, writeTimeout time.Duration) *Handler {
	return &Handler{
		registry:     registry,
		sink:         sink,
		writeTimeout: writeTimeout,
	}
}

// HandleWebSocket upgrades the request, assigns a connection id, confirms
// it to the client, and pumps inbound frames to the sink until the socket
// drops.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(uuid.New().String(), socket, h.writeTimeout)
	if err := h.registry.Add(conn); err != nil {
		conn.Close()
		return
	}

	if err := conn.WriteJSON(types.ConnectionMessage{
		Type:         types.MessageTypeConnection,
		ConnectionID: conn.ID(),
		Timestamp:    time.Now(),
	}); err != nil {
		h.registry.Remove(conn)
		conn.Close()
		return
	}

	h.readLoop(r.Context(), conn)
}

// readLoop processes inbound frames in arrival order for one connection.
func (h *Handler) readLoop(ctx context.Context, conn *Connection) {
	defer func() {
		h.registry.Remove(conn)
		conn.Close()
		h.sink.HandleDisconnect(ctx, conn)
	}()

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Connection %s read error: %v", conn.ID(), err)
			}
			return
		}
		h.sink.HandleMessage(ctx, conn, data)
	}
}
