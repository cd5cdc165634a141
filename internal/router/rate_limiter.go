package router

import (
	"sync"
	"time"
)

// DefaultCommandsPerMinute is the per-session command budget
const DefaultCommandsPerMinute = 600

// RateLimiter implements per-session rate limiting
// ARCHITECTURAL DISCOVERY: State is keyed by session id and dropped when the
// session departs, so the map never outgrows the live session count
type RateLimiter struct {
	limit int
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimit
}

// clientLimit tracks one session's current window
// FUNCTIONAL DISCOVERY: Fixed one-minute window; the first command after
// the window ends opens a new one
type clientLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing perMinute commands per session.
// A non-positive perMinute uses DefaultCommandsPerMinute.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultCommandsPerMinute
	}
	return &RateLimiter{
		limit:   perMinute,
		now:     time.Now,
		clients: make(map[string]*clientLimit),
	}
}

// Allow reports whether sessionID may issue another command
func (rl *RateLimiter) Allow(sessionID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	limit, exists := rl.clients[sessionID]
	if !exists {
		rl.clients[sessionID] = &clientLimit{count: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= time.Minute {
		limit.count = 1
		limit.windowStart = now
		return true
	}

	if limit.count >= rl.limit {
		return false
	}

	limit.count++
	return true
}

// Forget drops the state of a departed session
func (rl *RateLimiter) Forget(sessionID string) {
	rl.mu.Lock()
	delete(rl.clients, sessionID)
	rl.mu.Unlock()
}

// Cleanup removes entries whose window ended more than five minutes ago
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for id, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.clients, id)
		}
	}
}

// Tracked returns the number of sessions with live state
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
