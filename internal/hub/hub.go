package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"edujam/internal/metrics"
	"edujam/internal/room"
	"edujam/internal/session"
	"edujam/pkg/types"
)

// Departed describes a session that has been evicted from one channel
type Departed struct {
	SessionID string
	UserID    string
	Reason    string
	Rooms     []room.Departure
}

// DepartFunc receives every eviction exactly once
type DepartFunc func(Departed)

// Hub is the broadcast engine of one channel
// ARCHITECTURAL DISCOVERY: The hub owns no state of its own; it joins the
// session registry (transport handles) and the room directory (membership)
// by session id at send time, so neither registry holds the other's objects
type Hub struct {
	channel  string
	sessions *session.Registry
	rooms    *room.Directory
	metrics  *metrics.Metrics

	// evictMu makes registry removal and membership removal one step, so
	// concurrent cleanup from a closing socket and the sweeper cannot split
	// a session's departure between two callers
	evictMu sync.Mutex

	hookMu   sync.RWMutex
	onDepart DepartFunc
}

// New creates a hub for one channel
func New(channel string, sessions *session.Registry, rooms *room.Directory, m *metrics.Metrics) *Hub {
	rooms.RequireLive(func(sessionID string) bool {
		_, ok := sessions.Get(sessionID)
		return ok
	})
	return &Hub{
		channel:  channel,
		sessions: sessions,
		rooms:    rooms,
		metrics:  m,
	}
}

func (h *Hub) Channel() string             { return h.channel }
func (h *Hub) Sessions() *session.Registry { return h.sessions }
func (h *Hub) Rooms() *room.Directory      { return h.rooms }
func (h *Hub) Metrics() *metrics.Metrics   { return h.metrics }

// OnDepart registers the channel's departure handler
// FUNCTIONAL DISCOVERY: Departures found during a broadcast are handed to
// this hook on a separate goroutine, because the broadcast may run while the
// caller holds a room's operation lock and the hook will want to take it
func (h *Hub) OnDepart(fn DepartFunc) {
	h.hookMu.Lock()
	h.onDepart = fn
	h.hookMu.Unlock()
}

// Register adds a freshly connected session
func (h *Hub) Register(s *session.Session) error {
	if err := h.sessions.Register(s); err != nil {
		return err
	}
	h.metrics.ConnectionOpened(h.channel)
	return nil
}

// Send delivers event to every member of roomID except excludeSessionID.
// A member whose delivery fails is evicted and the broadcast continues.
// A room that no longer exists delivers nothing.
func (h *Hub) Send(roomID string, event interface{}, excludeSessionID string) (int, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("marshal %s event: %w", h.channel, err)
	}
	return h.deliver(h.rooms.Members(roomID), data, excludeSessionID), nil
}

// SendAll delivers event to every live session on the channel except excludeSessionID
func (h *Hub) SendAll(event interface{}, excludeSessionID string) (int, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("marshal %s event: %w", h.channel, err)
	}

	var ids []string
	h.sessions.Each(func(s *session.Session) bool {
		ids = append(ids, s.ID)
		return true
	})
	return h.deliver(ids, data, excludeSessionID), nil
}

// SendTo delivers event to exactly one session. Failure is returned to the
// caller and does not evict; the session's own read loop owns its cleanup.
func (h *Hub) SendTo(sessionID string, event interface{}) error {
	s, ok := h.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotConnected, sessionID)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", h.channel, err)
	}
	if err := s.Conn.Send(data); err != nil {
		h.metrics.Delivery(h.channel, metrics.OutcomeFailed)
		return fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	h.metrics.Delivery(h.channel, metrics.OutcomeDelivered)
	return nil
}

// deliver writes the same bytes to each recipient
// TECHNICAL DISCOVERY: Recipients are a snapshot of ids; each transport
// handle is looked up at the moment of the write and never cached
func (h *Hub) deliver(recipients []string, data []byte, excludeSessionID string) int {
	delivered := 0
	for _, id := range recipients {
		if id == excludeSessionID {
			continue
		}

		s, ok := h.sessions.Get(id)
		if !ok {
			// Membership outlived the session; drop the stale id
			h.evict(id, metrics.ReasonDisconnect, true)
			continue
		}

		if err := s.Conn.Send(data); err != nil {
			log.Printf("[%s] Delivery failed, evicting session: id=%s err=%v", h.channel, id, err)
			h.metrics.Delivery(h.channel, metrics.OutcomeFailed)
			h.evict(id, metrics.ReasonWriteError, true)
			continue
		}
		h.metrics.Delivery(h.channel, metrics.OutcomeDelivered)
		delivered++
	}
	return delivered
}

// Evict removes a session from the registry and from every room, closes its
// transport and runs the departure hook. Safe to call any number of times;
// only the first call for a session has an effect and reports true.
func (h *Hub) Evict(sessionID, reason string) bool {
	return h.evict(sessionID, reason, false)
}

func (h *Hub) evict(sessionID, reason string, async bool) bool {
	h.evictMu.Lock()
	s, removed := h.sessions.Remove(sessionID)
	departures := h.rooms.UnsubscribeAll(sessionID)
	h.evictMu.Unlock()

	if !removed && len(departures) == 0 {
		return false
	}

	departed := Departed{SessionID: sessionID, Reason: reason, Rooms: departures}
	if removed {
		departed.UserID = s.UserID()
		if err := s.Conn.Close(); err != nil {
			log.Printf("[%s] Failed to close evicted session %s: %v", h.channel, sessionID, err)
		}
		h.metrics.ConnectionClosed(h.channel)
		h.metrics.Eviction(h.channel, reason)
		log.Printf("[%s] Evicted session: id=%s user=%s reason=%s rooms=%d",
			h.channel, sessionID, departed.UserID, reason, len(departures))
	}
	h.RoomsChanged()

	h.hookMu.RLock()
	hook := h.onDepart
	h.hookMu.RUnlock()
	if hook != nil {
		if async {
			go hook(departed)
		} else {
			hook(departed)
		}
	}
	return true
}

// Probe sends a liveness ping to every live session and evicts those whose
// probe fails. Membership ids with no live session are dropped too.
// Returns the number of sessions evicted.
func (h *Hub) Probe() int {
	var failed []string
	h.sessions.Each(func(s *session.Session) bool {
		if err := s.Conn.Ping(); err != nil {
			failed = append(failed, s.ID)
		}
		return true
	})

	for roomID, members := range h.rooms.Memberships() {
		for _, id := range members {
			if _, ok := h.sessions.Get(id); !ok {
				log.Printf("[%s] Dropping stale member: room=%s session=%s", h.channel, roomID, id)
				failed = append(failed, id)
			}
		}
	}

	evicted := 0
	for _, id := range failed {
		if h.Evict(id, metrics.ReasonProbe) {
			evicted++
		}
	}
	return evicted
}

// ExpireIdle evicts every session idle for longer than timeout and returns their ids
func (h *Hub) ExpireIdle(timeout time.Duration) []string {
	type expiry struct {
		s          *session.Session
		departures []room.Departure
	}

	h.evictMu.Lock()
	expired := h.sessions.SweepExpired(timeout)
	batch := make([]expiry, 0, len(expired))
	for _, s := range expired {
		batch = append(batch, expiry{s: s, departures: h.rooms.UnsubscribeAll(s.ID)})
	}
	h.evictMu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	h.hookMu.RLock()
	hook := h.onDepart
	h.hookMu.RUnlock()

	ids := make([]string, 0, len(batch))
	for _, e := range batch {
		ids = append(ids, e.s.ID)
		if err := e.s.Conn.Close(); err != nil {
			log.Printf("[%s] Failed to close expired session %s: %v", h.channel, e.s.ID, err)
		}
		h.metrics.ConnectionClosed(h.channel)
		h.metrics.Eviction(h.channel, metrics.ReasonIdle)
		if hook != nil {
			hook(Departed{SessionID: e.s.ID, UserID: e.s.UserID(), Reason: metrics.ReasonIdle, Rooms: e.departures})
		}
	}
	h.RoomsChanged()
	return ids
}

// CloseAll evicts every live session and returns how many were closed
func (h *Hub) CloseAll(reason string) int {
	var ids []string
	h.sessions.Each(func(s *session.Session) bool {
		ids = append(ids, s.ID)
		return true
	})

	closed := 0
	for _, id := range ids {
		if h.Evict(id, reason) {
			closed++
		}
	}
	return closed
}

// RoomsChanged refreshes the live room gauge
func (h *Hub) RoomsChanged() {
	h.metrics.SetRooms(h.channel, h.rooms.Count())
}
