package room

import (
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Departure describes one room a session was removed from
type Departure struct {
	RoomID  string
	State   State
	Evicted bool // the room became empty and was removed
}

// Directory maps room id to room state and subscriber set
// ARCHITECTURAL DISCOVERY: Membership holds session ids only; transport handles
// live in the session registry and are looked up at send time
type Directory struct {
	name string

	mu           sync.RWMutex
	rooms        map[string]*entry
	sessionRooms map[string]map[string]struct{} // sessionID -> roomIDs
	live         func(sessionID string) bool    // guarded by mu; nil admits everyone
}

type entry struct {
	state   State
	members map[string]struct{}
	removed bool // guarded by Directory.mu

	// op serializes whole operations (mutation plus broadcast) on one room
	op sync.Mutex
}

// NewDirectory creates an empty directory. name is used in log lines.
func NewDirectory(name string) *Directory {
	return &Directory{
		name:         name,
		rooms:        make(map[string]*entry),
		sessionRooms: make(map[string]map[string]struct{}),
	}
}

// RequireLive makes every subscription check live(sessionID) first and fail
// with ErrSessionNotConnected for a session that is gone. The check runs
// under the directory lock, so a session removed from its registry before
// UnsubscribeAll can never be left behind as a member.
func (d *Directory) RequireLive(live func(sessionID string) bool) {
	d.mu.Lock()
	d.live = live
	d.mu.Unlock()
}

// CreateBoard allocates a board with a fresh id and subscribes the creator
func (d *Directory) CreateBoard(creatorSessionID string) (*Board, error) {
	board := NewBoard(uuid.New().String())
	if err := d.insert(board, creatorSessionID); err != nil {
		return nil, err
	}
	return board, nil
}

// CreateGroup allocates a group with a fresh id and subscribes the creator
func (d *Directory) CreateGroup(creatorSessionID string, cfg GroupConfig) (*Group, error) {
	group := NewGroup(uuid.New().String(), cfg)
	if err := d.insert(group, creatorSessionID); err != nil {
		return nil, err
	}
	return group, nil
}

// OpenBoard subscribes sessionID to boardID, creating the board under that id
// if it does not exist yet. created reports whether a new board was made.
func (d *Directory) OpenBoard(boardID, sessionID string) (board *Board, created bool, err error) {
	if sessionID == "" {
		return nil, false, ErrNoSubscriber
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.liveLocked(sessionID) {
		return nil, false, ErrSessionNotConnected
	}
	if e, ok := d.rooms[boardID]; ok {
		b, isBoard := e.state.(*Board)
		if !isBoard {
			return nil, false, ErrWrongRoomKind
		}
		d.addMemberLocked(boardID, e, sessionID)
		return b, false, nil
	}

	b := NewBoard(boardID)
	e := &entry{state: b, members: make(map[string]struct{})}
	d.rooms[boardID] = e
	d.addMemberLocked(boardID, e, sessionID)
	log.Printf("[%s] Created room: id=%s kind=%s", d.name, boardID, KindBoard)
	return b, true, nil
}

// insert registers state with its first subscriber in one step so no room is
// ever observable with an empty membership set
func (d *Directory) insert(state State, creatorSessionID string) error {
	if creatorSessionID == "" {
		return ErrNoSubscriber
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.liveLocked(creatorSessionID) {
		return ErrSessionNotConnected
	}
	if _, exists := d.rooms[state.ID()]; exists {
		return ErrRoomExists
	}
	e := &entry{state: state, members: make(map[string]struct{})}
	d.rooms[state.ID()] = e
	d.addMemberLocked(state.ID(), e, creatorSessionID)

	log.Printf("[%s] Created room: id=%s kind=%s", d.name, state.ID(), state.Kind())
	return nil
}

// Get returns the room state, or false if the room is absent
func (d *Directory) Get(roomID string) (State, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.rooms[roomID]
	if !ok {
		return nil, false
	}
	return e.state, true
}

// Board returns the board with the given id
func (d *Directory) Board(roomID string) (*Board, bool) {
	state, ok := d.Get(roomID)
	if !ok {
		return nil, false
	}
	b, ok := state.(*Board)
	return b, ok
}

// Group returns the group with the given id
func (d *Directory) Group(roomID string) (*Group, bool) {
	state, ok := d.Get(roomID)
	if !ok {
		return nil, false
	}
	g, ok := state.(*Group)
	return g, ok
}

// Subscribe adds sessionID to the room's membership set
func (d *Directory) Subscribe(roomID, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if !d.liveLocked(sessionID) {
		return ErrSessionNotConnected
	}
	d.addMemberLocked(roomID, e, sessionID)
	return nil
}

// Unsubscribe removes sessionID from the room. If that leaves the room empty
// the room is evicted in the same critical section and isNowEmpty is true.
// Unsubscribing a session that is not a member is a no-op.
func (d *Directory) Unsubscribe(roomID, sessionID string) (isNowEmpty bool, err error) {
	d.mu.Lock()
	e, ok := d.rooms[roomID]
	if !ok {
		d.mu.Unlock()
		return false, ErrRoomNotFound
	}
	evicted := d.removeMemberLocked(roomID, e, sessionID)
	d.mu.Unlock()

	if evicted {
		d.evicted(e.state)
	}
	return evicted, nil
}

// UnsubscribeAll removes sessionID from every room it belongs to.
// Safe to call repeatedly; later calls return nothing.
func (d *Directory) UnsubscribeAll(sessionID string) []Departure {
	d.mu.Lock()
	roomIDs := d.sessionRooms[sessionID]
	departures := make([]Departure, 0, len(roomIDs))
	for roomID := range roomIDs {
		e, ok := d.rooms[roomID]
		if !ok {
			continue
		}
		evicted := d.removeMemberLocked(roomID, e, sessionID)
		departures = append(departures, Departure{RoomID: roomID, State: e.state, Evicted: evicted})
	}
	delete(d.sessionRooms, sessionID)
	d.mu.Unlock()

	for _, dep := range departures {
		if dep.Evicted {
			d.evicted(dep.State)
		}
	}
	return departures
}

// IsMember reports whether sessionID is subscribed to roomID
func (d *Directory) IsMember(roomID, sessionID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	_, member := e.members[sessionID]
	return member
}

// Members returns a snapshot of the room's subscribers
func (d *Directory) Members(roomID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(e.members))
	for id := range e.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RoomsOf returns the ids of every room sessionID is subscribed to
func (d *Directory) RoomsOf(sessionID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.sessionRooms[sessionID]))
	for id := range d.sessionRooms[sessionID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Memberships returns a snapshot of room id -> subscriber ids
func (d *Directory) Memberships() map[string][]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string][]string, len(d.rooms))
	for roomID, e := range d.rooms {
		ids := make([]string, 0, len(e.members))
		for id := range e.members {
			ids = append(ids, id)
		}
		out[roomID] = ids
	}
	return out
}

// Exclusive runs fn with exclusive access to one room. Operations on other
// rooms proceed concurrently. Returns ErrRoomNotFound if the room is absent
// or is evicted before the lock is acquired.
// fn must not call Exclusive for the same room.
func (d *Directory) Exclusive(roomID string, fn func(State) error) error {
	d.mu.RLock()
	e, ok := d.rooms[roomID]
	d.mu.RUnlock()
	if !ok {
		return ErrRoomNotFound
	}

	e.op.Lock()
	defer e.op.Unlock()

	d.mu.RLock()
	removed := e.removed
	d.mu.RUnlock()
	if removed {
		return ErrRoomNotFound
	}

	return fn(e.state)
}

// Range calls fn for every room until fn returns false
func (d *Directory) Range(fn func(State) bool) {
	d.mu.RLock()
	states := make([]State, 0, len(d.rooms))
	for _, e := range d.rooms {
		states = append(states, e.state)
	}
	d.mu.RUnlock()

	for _, s := range states {
		if !fn(s) {
			return
		}
	}
}

// Count returns the number of live rooms
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

func (d *Directory) liveLocked(sessionID string) bool {
	return d.live == nil || d.live(sessionID)
}

func (d *Directory) addMemberLocked(roomID string, e *entry, sessionID string) {
	e.members[sessionID] = struct{}{}
	rooms, ok := d.sessionRooms[sessionID]
	if !ok {
		rooms = make(map[string]struct{})
		d.sessionRooms[sessionID] = rooms
	}
	rooms[roomID] = struct{}{}
}

// removeMemberLocked reports whether the room was evicted
func (d *Directory) removeMemberLocked(roomID string, e *entry, sessionID string) bool {
	if _, member := e.members[sessionID]; !member {
		return false
	}
	delete(e.members, sessionID)
	if rooms, ok := d.sessionRooms[sessionID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(d.sessionRooms, sessionID)
		}
	}

	if len(e.members) > 0 {
		return false
	}
	delete(d.rooms, roomID)
	e.removed = true
	return true
}

func (d *Directory) evicted(state State) {
	state.markEvicted()
	log.Printf("[%s] Evicted empty room: id=%s kind=%s", d.name, state.ID(), state.Kind())
}
