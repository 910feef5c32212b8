package router

import (
	"sync"
	"time"
)

// RateLimiter bounds inbound messages per connection with a fixed window.
type RateLimiter struct {
	mu          sync.Mutex
	clients     map[string]*clientLimit
	maxMessages int
	window      time.Duration
}

type clientLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter allows maxMessages per window for each client id.
func NewRateLimiter(maxMessages int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients:     make(map[string]*clientLimit),
		maxMessages: maxMessages,
		window:      window,
	}
}

// Allow reports whether the client may send another message now.
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	limit, exists := rl.clients[clientID]
	if !exists || now.Sub(limit.windowStart) >= rl.window {
		rl.clients[clientID] = &clientLimit{messageCount: 1, windowStart: now}
		return true
	}

	if limit.messageCount >= rl.maxMessages {
		return false
	}
	limit.messageCount++
	return true
}

// Cleanup drops client state idle for several windows. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for clientID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*rl.window {
			delete(rl.clients, clientID)
		}
	}
}
