package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lingocast/pkg/interfaces"
)

// Stats is the slice of the live system the diagnostics surface reads.
type Stats interface {
	ActiveSessionCount() int
	ActiveConnectionCount() int
}

// Server is the diagnostics HTTP surface: health, live counters, and
// Prometheus metrics. No business logic lives here.
type Server struct {
	storage interfaces.Storage
	stats   Stats
	mux     *http.ServeMux
}

// NewServer wires the diagnostics routes.
func NewServer(storage interfaces.Storage, stats Stats) *Server {
	s := &Server{
		storage: storage,
		stats:   stats,
		mux:     http.NewServeMux(),
	}
	s.mux.Handle("/health", s.jsonMiddleware(http.HandlerFunc(s.handleHealth)))
	s.mux.Handle("/api/stats", s.jsonMiddleware(http.HandlerFunc(s.handleStats)))
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy", Timestamp: time.Now()}
	status := http.StatusOK
	if err := s.storage.HealthCheck(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

type statsResponse struct {
	ActiveSessions    int       `json:"activeSessions"`
	ActiveConnections int       `json:"activeConnections"`
	Timestamp         time.Time `json:"timestamp"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	_ = json.NewEncoder(w).Encode(statsResponse{
		ActiveSessions:    s.stats.ActiveSessionCount(),
		ActiveConnections: s.stats.ActiveConnectionCount(),
		Timestamp:         time.Now(),
	})
}
