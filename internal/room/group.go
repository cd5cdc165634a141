package room

import (
	"sync"
	"time"

	"edujam/pkg/types"
)

// GroupConfig carries the immutable attributes of a new study group
type GroupConfig struct {
	Name            string
	Subject         string
	BoardID         string
	CreatorID       string
	MaxParticipants int
}

// Group is a topic-scoped study room with a bounded participant roster
type Group struct {
	id              string
	name            string
	subject         string
	boardID         string
	creatorID       string
	createdAt       time.Time
	maxParticipants int

	mu           sync.RWMutex
	participants map[string]struct{}
	order        []string // join order, for stable listings
	active       bool
}

// NewGroup creates an active, empty group
func NewGroup(id string, cfg GroupConfig) *Group {
	limit := cfg.MaxParticipants
	if limit <= 0 {
		limit = types.DefaultMaxParticipants
	}
	return &Group{
		id:              id,
		name:            cfg.Name,
		subject:         cfg.Subject,
		boardID:         cfg.BoardID,
		creatorID:       cfg.CreatorID,
		createdAt:       time.Now(),
		maxParticipants: limit,
		participants:    make(map[string]struct{}),
		active:          true,
	}
}

func (g *Group) ID() string           { return g.id }
func (g *Group) Kind() Kind           { return KindGroup }
func (g *Group) Name() string         { return g.name }
func (g *Group) Subject() string      { return g.subject }
func (g *Group) BoardID() string      { return g.boardID }
func (g *Group) CreatedAt() time.Time { return g.createdAt }

func (g *Group) markEvicted() {
	g.mu.Lock()
	g.active = false
	g.mu.Unlock()
}

// AddParticipant inserts userID unless the group is full.
// Adding an existing participant succeeds without changing the roster.
func (g *Group) AddParticipant(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.participants[userID]; exists {
		return true
	}
	if len(g.participants) >= g.maxParticipants {
		return false
	}

	g.participants[userID] = struct{}{}
	g.order = append(g.order, userID)
	return true
}

// RemoveParticipant reports whether userID was on the roster
func (g *Group) RemoveParticipant(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.participants[userID]; !exists {
		return false
	}
	delete(g.participants, userID)
	for i, id := range g.order {
		if id == userID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return true
}

// HasParticipant reports whether userID is on the roster
func (g *Group) HasParticipant(userID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.participants[userID]
	return ok
}

func (g *Group) Active() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// Info returns a consistent read-only view of the group
func (g *Group) Info() types.GroupInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, len(g.order))
	copy(ids, g.order)

	return types.GroupInfo{
		ID:                  g.id,
		Name:                g.name,
		Subject:             g.subject,
		BoardID:             g.boardID,
		CreatorID:           g.creatorID,
		CreatedAt:           g.createdAt,
		MaxParticipants:     g.maxParticipants,
		CurrentParticipants: len(g.participants),
		ParticipantIDs:      ids,
		Active:              g.active,
		Full:                len(g.participants) >= g.maxParticipants,
	}
}
