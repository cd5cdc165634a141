package session

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"edujam/pkg/interfaces"
)

// Session is one live client connection on one channel
type Session struct {
	ID          string
	Conn        interfaces.Connection
	ConnectedAt time.Time

	mu     sync.RWMutex
	userID string
	email  string

	lastActivity atomic.Int64 // unix nanos
}

// UserID returns the authenticated user, or "" for anonymous sessions
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Email returns the user's email if the token carried one
func (s *Session) Email() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.email
}

// LastActivity returns the time of the most recent inbound frame
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// New creates a session for conn. id may be empty, in which case one is allocated.
func New(id string, conn interfaces.Connection, identity interfaces.Identity) *Session {
	if id == "" {
		id = uuid.New().String()
	}
	s := &Session{
		ID:          id,
		Conn:        conn,
		ConnectedAt: time.Now(),
		userID:      identity.UserID,
		email:       identity.Email,
	}
	s.lastActivity.Store(s.ConnectedAt.UnixNano())
	return s
}

// Registry maps session id to live session and tracks last activity
type Registry struct {
	name string

	mu       sync.RWMutex
	sessions map[string]*Session

	now func() time.Time
}

// NewRegistry creates an empty registry. name is used in log lines.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:     name,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Register adds s and stamps its activity time
func (r *Registry) Register(s *Session) error {
	if s == nil || s.Conn == nil {
		return ErrNilConnection
	}
	s.lastActivity.Store(r.now().UnixNano())

	r.mu.Lock()
	r.sessions[s.ID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	log.Printf("[%s] Registered session: id=%s user=%s total=%d", r.name, s.ID, s.UserID(), count)
	return nil
}

// Touch refreshes the activity time. A removed session is never resurrected.
func (r *Registry) Touch(sessionID string) bool {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	s.lastActivity.Store(r.now().UnixNano())
	return true
}

// Get returns the live session with the given id
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// SetIdentity attaches a user to a session after connect
func (r *Registry) SetIdentity(sessionID string, identity interfaces.Identity) error {
	s, ok := r.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	s.mu.Lock()
	s.userID = identity.UserID
	if identity.Email != "" {
		s.email = identity.Email
	}
	s.mu.Unlock()
	return nil
}

// Remove deletes the session. The second result is false if it was already gone.
func (r *Registry) Remove(sessionID string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	return s, ok
}

// SweepExpired removes and returns every session idle for longer than timeout
func (r *Registry) SweepExpired(timeout time.Duration) []*Session {
	cutoff := r.now().Add(-timeout).UnixNano()

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*Session
	for id, s := range r.sessions {
		if s.lastActivity.Load() < cutoff {
			delete(r.sessions, id)
			expired = append(expired, s)
		}
	}
	if len(expired) > 0 {
		log.Printf("[%s] Expired %d idle sessions", r.name, len(expired))
	}
	return expired
}

// Each calls fn for a snapshot of the live sessions until fn returns false
func (r *Registry) Each(fn func(*Session) bool) {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
