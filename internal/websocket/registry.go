package websocket

import (
	"log"
	"sync"
	"time"

	"lingocast/internal/metrics"
	"lingocast/pkg/types"
)

// Registry tracks every live connection plus per-session role maps for
// recipient lookup. The heartbeat loop bounds it to sockets that still
// answer pings.
type Registry struct {
	mu              sync.RWMutex
	connections     map[string]*Connection            // connID -> Connection
	sessionTeachers map[string]map[string]*Connection // sessionID -> connID -> Connection
	sessionStudents map[string]map[string]*Connection // sessionID -> connID -> Connection

	metrics      *metrics.Metrics
	pingInterval time.Duration

	runMu   sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewRegistry creates an empty registry. The metrics argument may be nil.
func NewRegistry(pingInterval time.Duration, m *metrics.Metrics) *Registry {
	return &Registry{
		connections:     make(map[string]*Connection),
		sessionTeachers: make(map[string]map[string]*Connection),
		sessionStudents: make(map[string]map[string]*Connection),
		metrics:         m,
		pingInterval:    pingInterval,
	}
}

// Add tracks a freshly opened connection, before registration.
func (r *Registry) Add(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	r.connections[conn.ID()] = conn
	total := len(r.connections)
	r.mu.Unlock()

	r.metrics.ConnectionOpened()
	log.Printf("Connection opened: id=%s total=%d", conn.ID(), total)
	return nil
}

// Promote places a registered connection into its session-role map so the
// send primitives can find it by role and language.
func (r *Registry) Promote(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsRegistered() {
		return ErrConnectionNotRegistered
	}

	sessionID := conn.SessionID()
	r.mu.Lock()
	defer r.mu.Unlock()

	switch conn.Role() {
	case types.RoleTeacher:
		if r.sessionTeachers[sessionID] == nil {
			r.sessionTeachers[sessionID] = make(map[string]*Connection)
		}
		r.sessionTeachers[sessionID][conn.ID()] = conn
	case types.RoleStudent:
		if r.sessionStudents[sessionID] == nil {
			r.sessionStudents[sessionID] = make(map[string]*Connection)
		}
		r.sessionStudents[sessionID][conn.ID()] = conn
	default:
		return ErrConnectionNotRegistered
	}
	return nil
}

// Remove drops a connection from all maps. Idempotent; it only removes
// the exact instance currently tracked under that id, so a replaced
// connection cannot unregister its successor.
func (r *Registry) Remove(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	tracked, exists := r.connections[conn.ID()]
	if !exists || tracked != conn {
		r.mu.Unlock()
		return
	}
	delete(r.connections, conn.ID())

	sessionID := conn.SessionID()
	if teachers, ok := r.sessionTeachers[sessionID]; ok {
		delete(teachers, conn.ID())
		if len(teachers) == 0 {
			delete(r.sessionTeachers, sessionID)
		}
	}
	if students, ok := r.sessionStudents[sessionID]; ok {
		delete(students, conn.ID())
		if len(students) == 0 {
			delete(r.sessionStudents, sessionID)
		}
	}
	total := len(r.connections)
	r.mu.Unlock()

	r.metrics.ConnectionClosed()
	log.Printf("Connection closed: id=%s total=%d", conn.ID(), total)
}

// Get returns a connection by id.
func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connID]
	return conn, ok
}

// Connections returns a snapshot of every tracked connection.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		out = append(out, conn)
	}
	return out
}

// TeachersForSession returns the teacher connections bound to a session.
func (r *Registry) TeachersForSession(sessionID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.sessionTeachers[sessionID]))
	for _, conn := range r.sessionTeachers[sessionID] {
		out = append(out, conn)
	}
	return out
}

// StudentsForSession returns the student connections bound to a session.
func (r *Registry) StudentsForSession(sessionID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.sessionStudents[sessionID]))
	for _, conn := range r.sessionStudents[sessionID] {
		out = append(out, conn)
	}
	return out
}

// StudentLanguages returns the distinct languages of a session's students.
func (r *Registry) StudentLanguages(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, conn := range r.sessionStudents[sessionID] {
		lang := conn.LanguageCode()
		if _, dup := seen[lang]; dup || lang == "" {
			continue
		}
		seen[lang] = struct{}{}
		out = append(out, lang)
	}
	return out
}

// ActiveConnectionCount reports how many sockets are tracked.
func (r *Registry) ActiveConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// StartHeartbeat launches the periodic liveness loop: every interval each
// connection is pinged, and any connection that never answered the prior
// ping is forcibly terminated and removed.
func (r *Registry) StartHeartbeat() error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.running {
		return ErrHeartbeatRunning
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.heartbeatLoop()
	return nil
}

// StopHeartbeat halts the liveness loop.
func (r *Registry) StopHeartbeat() error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return ErrHeartbeatNotRunning
	}
	r.running = false
	close(r.stop)
	<-r.done
	return nil
}

func (r *Registry) heartbeatLoop() {
	defer close(r.done)

	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.SweepHeartbeats()
		}
	}
}

// SweepHeartbeats runs one heartbeat round: terminate connections owing a
// pong, ping the rest.
func (r *Registry) SweepHeartbeats() {
	for _, conn := range r.Connections() {
		if conn.AwaitingPong() {
			log.Printf("Connection %s missed heartbeat, terminating", conn.ID())
			conn.Close()
			r.Remove(conn)
			r.metrics.HeartbeatTimeout()
			continue
		}
		if err := conn.Ping(); err != nil {
			conn.Close()
			r.Remove(conn)
		}
	}
}
