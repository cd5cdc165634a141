package router

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"edujam/internal/hub"
	"edujam/internal/room"
	"edujam/pkg/types"
)

const joinFailed = "Failed to join group: Group not found or full"

// GroupDispatcher handles the study-group channel. Every command except
// liveness requires an authenticated session.
// FUNCTIONAL DISCOVERY: Directory membership is per session while the
// participant roster is per user, so one user with two tabs holds one slot
type GroupDispatcher struct {
	base
	maxParticipants int
}

// NewGroupDispatcher wires a dispatcher to the group hub and registers its
// departure handler. maxParticipants <= 0 uses the group default.
func NewGroupDispatcher(h *hub.Hub, commandsPerMinute, maxParticipants int) (*GroupDispatcher, error) {
	b, err := newBase(h, commandsPerMinute)
	if err != nil {
		return nil, err
	}
	d := &GroupDispatcher{base: b, maxParticipants: maxParticipants}
	h.OnDepart(d.departed)
	return d, nil
}

// Dispatch handles one text frame from sessionID
func (d *GroupDispatcher) Dispatch(ctx context.Context, sessionID string, frame []byte) {
	cmd, ok := d.admit(sessionID, frame, ParseGroupCommand)
	if !ok {
		return
	}
	d.finish(sessionID, cmd.Type(), d.handle(sessionID, cmd))
}

func (d *GroupDispatcher) handle(sessionID string, cmd Command) error {
	switch cmd.(type) {
	case Ping:
		d.reply(sessionID, types.SimpleEvent{Type: types.EventPong})
		return nil
	case Pong:
		return nil
	}

	userID := d.identity(sessionID)
	if userID == "" {
		return types.Unauthorizedf("Authentication required")
	}

	switch c := cmd.(type) {
	case ListSubjects:
		d.reply(sessionID, types.SubjectsEvent{Type: types.EventSubjectsList, Subjects: types.Subjects})
		return nil
	case ListGroupsBySubject:
		d.reply(sessionID, types.GroupsListEvent{
			Type:    types.EventGroupsList,
			Subject: c.Subject,
			Groups:  d.GroupsBySubject(c.Subject),
		})
		return nil
	case CreateGroup:
		return d.createGroup(sessionID, userID, c)
	case JoinGroup:
		return d.joinGroup(sessionID, userID, c.GroupID)
	case LeaveGroup:
		return d.leaveGroup(sessionID, userID, c.GroupID)
	case SendGroupChatMessage:
		return d.chat(sessionID, userID, c)
	default:
		return types.UnknownCommandf("Unknown message type: %s", cmd.Type())
	}
}

func (d *GroupDispatcher) createGroup(sessionID, userID string, c CreateGroup) error {
	rooms := d.hub.Rooms()
	group, err := rooms.CreateGroup(sessionID, room.GroupConfig{
		Name:            c.Name,
		Subject:         c.Subject,
		BoardID:         uuid.New().String(),
		CreatorID:       userID,
		MaxParticipants: d.maxParticipants,
	})
	if err != nil {
		return err
	}
	d.hub.RoomsChanged()

	err = rooms.Exclusive(group.ID(), func(room.State) error {
		group.AddParticipant(userID)
		d.reply(sessionID, types.GroupEvent{Type: types.EventGroupCreated, Group: group.Info()})
		return nil
	})
	if err != nil {
		return groupErr(err, "Group not found")
	}

	log.Printf("[%s] Created study group: id=%s subject=%s creator=%s", d.hub.Channel(), group.ID(), c.Subject, userID)
	d.announceGroups(c.Subject)
	return nil
}

func (d *GroupDispatcher) joinGroup(sessionID, userID, groupID string) error {
	rooms := d.hub.Rooms()
	var subject string
	err := rooms.Exclusive(groupID, func(state room.State) error {
		group, ok := state.(*room.Group)
		if !ok {
			return types.NotFoundf(joinFailed)
		}
		rejoin := group.HasParticipant(userID)
		if !group.AddParticipant(userID) {
			return types.Capacityf(joinFailed)
		}
		if err := rooms.Subscribe(groupID, sessionID); err != nil {
			if !rejoin {
				group.RemoveParticipant(userID)
			}
			return err
		}
		subject = group.Subject()

		d.reply(sessionID, types.GroupEvent{Type: types.EventGroupJoined, Group: group.Info()})
		d.broadcast(groupID, types.PresenceEvent{
			Type:    types.EventUserJoined,
			UserID:  userID,
			GroupID: groupID,
		}, sessionID)
		return nil
	})
	if err != nil {
		return groupErr(err, joinFailed)
	}

	d.announceGroups(subject)
	return nil
}

func (d *GroupDispatcher) leaveGroup(sessionID, userID, groupID string) error {
	rooms := d.hub.Rooms()
	var subject string
	err := rooms.Exclusive(groupID, func(state room.State) error {
		group, ok := state.(*room.Group)
		if !ok {
			return types.NotFoundf("Group not found")
		}
		if !rooms.IsMember(groupID, sessionID) {
			return types.Unauthorizedf("You are not in this group")
		}
		subject = group.Subject()

		evicted, err := rooms.Unsubscribe(groupID, sessionID)
		if err != nil {
			return err
		}
		if !d.userPresent(groupID, userID) {
			group.RemoveParticipant(userID)
		}

		d.reply(sessionID, types.GroupLeftEvent{Type: types.EventGroupLeft, GroupID: groupID})
		if !evicted {
			d.broadcast(groupID, types.PresenceEvent{
				Type:    types.EventUserLeft,
				UserID:  userID,
				GroupID: groupID,
			}, sessionID)
		}
		return nil
	})
	d.hub.RoomsChanged()
	if err != nil {
		return groupErr(err, "Group not found")
	}

	d.announceGroups(subject)
	return nil
}

func (d *GroupDispatcher) chat(sessionID, userID string, c SendGroupChatMessage) error {
	rooms := d.hub.Rooms()
	err := rooms.Exclusive(c.GroupID, func(room.State) error {
		if !rooms.IsMember(c.GroupID, sessionID) {
			return types.Unauthorizedf("You are not in this group")
		}
		d.broadcast(c.GroupID, types.GroupChatEvent{
			Type:      types.EventGroupChatMessage,
			GroupID:   c.GroupID,
			UserID:    userID,
			Message:   c.Message,
			Timestamp: time.Now().UnixMilli(),
		}, "")
		return nil
	})
	return groupErr(err, "Group not found")
}

// GroupsBySubject lists the active groups of subject, oldest first
func (d *GroupDispatcher) GroupsBySubject(subject string) []types.GroupInfo {
	groups := make([]types.GroupInfo, 0)
	d.hub.Rooms().Range(func(state room.State) bool {
		if g, ok := state.(*room.Group); ok && g.Subject() == subject && g.Active() {
			groups = append(groups, g.Info())
		}
		return true
	})
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].ID < groups[j].ID
		}
		return groups[i].CreatedAt.Before(groups[j].CreatedAt)
	})
	return groups
}

// Group returns the info of a live group
func (d *GroupDispatcher) Group(groupID string) (types.GroupInfo, bool) {
	g, ok := d.hub.Rooms().Group(groupID)
	if !ok {
		return types.GroupInfo{}, false
	}
	return g.Info(), true
}

// HasBoard reports whether boardID is the linked board of a live group
func (d *GroupDispatcher) HasBoard(boardID string) bool {
	found := false
	d.hub.Rooms().Range(func(state room.State) bool {
		if g, ok := state.(*room.Group); ok && g.BoardID() == boardID {
			found = true
			return false
		}
		return true
	})
	return found
}

// announceGroups pushes the refreshed listing of subject to every session
func (d *GroupDispatcher) announceGroups(subject string) {
	if subject == "" {
		return
	}
	_, err := d.hub.SendAll(types.GroupsListEvent{
		Type:    types.EventGroupsListUpdate,
		Subject: subject,
		Groups:  d.GroupsBySubject(subject),
	}, "")
	if err != nil {
		log.Printf("[%s] Failed to announce groups for %s: %v", d.hub.Channel(), subject, err)
	}
}

// userPresent reports whether any session subscribed to groupID belongs to userID
func (d *GroupDispatcher) userPresent(groupID, userID string) bool {
	for _, id := range d.hub.Rooms().Members(groupID) {
		if s, ok := d.hub.Sessions().Get(id); ok && s.UserID() == userID {
			return true
		}
	}
	return false
}

// departed releases the departing user's slots and refreshes listings
func (d *GroupDispatcher) departed(ev hub.Departed) {
	d.limiter.Forget(ev.SessionID)

	subjects := make(map[string]struct{})
	for _, dep := range ev.Rooms {
		group, ok := dep.State.(*room.Group)
		if !ok {
			continue
		}
		subjects[group.Subject()] = struct{}{}

		if dep.Evicted {
			group.RemoveParticipant(ev.UserID)
			continue
		}
		err := d.hub.Rooms().Exclusive(dep.RoomID, func(room.State) error {
			if ev.UserID != "" && !d.userPresent(dep.RoomID, ev.UserID) {
				group.RemoveParticipant(ev.UserID)
			}
			d.broadcast(dep.RoomID, types.PresenceEvent{
				Type:    types.EventUserLeft,
				UserID:  ev.UserID,
				GroupID: dep.RoomID,
			}, ev.SessionID)
			return nil
		})
		if errors.Is(err, room.ErrRoomNotFound) {
			group.RemoveParticipant(ev.UserID)
		}
	}

	for subject := range subjects {
		d.announceGroups(subject)
	}
}

// groupErr maps directory misses onto the given client-facing message
func groupErr(err error, notFound string) error {
	if errors.Is(err, room.ErrRoomNotFound) {
		return types.NotFoundf("%s", notFound)
	}
	return err
}
