package router

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"edujam/internal/hub"
	"edujam/internal/room"
	"edujam/pkg/types"
)

// BoardDispatcher handles the board channel
// ARCHITECTURAL DISCOVERY: Every board mutation and its broadcast run inside
// Directory.Exclusive, so all members observe one total order per board
type BoardDispatcher struct {
	base

	// linked reports whether a missing board id belongs to a study group and
	// may be created by its first joiner
	linked func(boardID string) bool
}

// NewBoardDispatcher wires a dispatcher to the board hub and registers its
// departure handler. linked may be nil.
func NewBoardDispatcher(h *hub.Hub, commandsPerMinute int, linked func(boardID string) bool) (*BoardDispatcher, error) {
	b, err := newBase(h, commandsPerMinute)
	if err != nil {
		return nil, err
	}
	if linked == nil {
		linked = func(string) bool { return false }
	}
	d := &BoardDispatcher{base: b, linked: linked}
	h.OnDepart(d.departed)
	return d, nil
}

// Dispatch handles one text frame from sessionID
func (d *BoardDispatcher) Dispatch(ctx context.Context, sessionID string, frame []byte) {
	cmd, ok := d.admit(sessionID, frame, ParseBoardCommand)
	if !ok {
		return
	}
	d.finish(sessionID, cmd.Type(), d.handle(sessionID, cmd))
}

func (d *BoardDispatcher) handle(sessionID string, cmd Command) error {
	switch c := cmd.(type) {
	case CreateBoard:
		return d.createBoard(sessionID)
	case JoinBoard:
		return d.joinBoard(sessionID, c.BoardID)
	case LeaveBoard:
		return d.leaveBoard(sessionID, c.BoardID)
	case RequestFullState:
		return d.requestFullState(sessionID, c.BoardID)
	case AddStroke:
		return d.addStroke(sessionID, c)
	case Undo:
		return d.undo(sessionID, c.BoardID)
	case Redo:
		return d.redo(sessionID, c.BoardID)
	case ClearBoard:
		return d.clear(sessionID, c.BoardID)
	case UpdateBoardSettings:
		return d.updateSettings(sessionID, c)
	case Ping:
		d.reply(sessionID, types.SimpleEvent{Type: types.EventPong})
		return nil
	case Pong:
		return nil
	default:
		return types.UnknownCommandf("Unknown message type: %s", cmd.Type())
	}
}

func (d *BoardDispatcher) createBoard(sessionID string) error {
	d.leaveOthers(sessionID, "")

	board, err := d.hub.Rooms().CreateBoard(sessionID)
	if err != nil {
		return err
	}
	d.hub.RoomsChanged()

	d.reply(sessionID, types.BoardStateEvent{
		Type:       types.EventBoardCreated,
		BoardID:    board.ID(),
		BoardState: board.Snapshot(),
	})
	return nil
}

// joinBoard subscribes the sender to boardID, leaving any board it was on.
// An unknown target leaves the current membership untouched.
func (d *BoardDispatcher) joinBoard(sessionID, boardID string) error {
	rooms := d.hub.Rooms()
	_, exists := rooms.Board(boardID)
	if !exists && !d.linked(boardID) {
		return types.NotFoundf("Board not found: %s", boardID)
	}

	d.leaveOthers(sessionID, boardID)

	if !exists {
		if _, created, err := rooms.OpenBoard(boardID, sessionID); err != nil {
			return err
		} else if created {
			d.hub.RoomsChanged()
		}
	}

	err := rooms.Exclusive(boardID, func(state room.State) error {
		board, ok := state.(*room.Board)
		if !ok {
			return types.NotFoundf("Board not found: %s", boardID)
		}
		if err := rooms.Subscribe(boardID, sessionID); err != nil {
			return err
		}

		d.reply(sessionID, types.BoardStateEvent{
			Type:       types.EventBoardJoined,
			BoardID:    boardID,
			BoardState: board.Snapshot(),
		})
		d.broadcast(boardID, types.PresenceEvent{
			Type:    types.EventUserJoined,
			UserID:  d.actor(sessionID),
			BoardID: boardID,
		}, sessionID)
		return nil
	})
	return boardErr(boardID, err)
}

func (d *BoardDispatcher) leaveBoard(sessionID, boardID string) error {
	err := d.withMember(sessionID, boardID, func(*room.Board) error {
		return d.unsubscribe(sessionID, boardID, true)
	})
	d.hub.RoomsChanged()
	return err
}

// unsubscribe removes the session from a board it belongs to and tells the
// remaining members. Must run inside the board's Exclusive section.
func (d *BoardDispatcher) unsubscribe(sessionID, boardID string, confirm bool) error {
	evicted, err := d.hub.Rooms().Unsubscribe(boardID, sessionID)
	if err != nil {
		return err
	}
	if confirm {
		d.reply(sessionID, types.BoardEvent{Type: types.EventBoardLeft, BoardID: boardID})
	}
	if !evicted {
		d.broadcast(boardID, types.PresenceEvent{
			Type:    types.EventUserLeft,
			UserID:  d.actor(sessionID),
			BoardID: boardID,
		}, sessionID)
	}
	return nil
}

// leaveOthers drops the session from every board other than keep.
// A session is on at most one board at a time.
func (d *BoardDispatcher) leaveOthers(sessionID, keep string) {
	rooms := d.hub.Rooms()
	for _, boardID := range rooms.RoomsOf(sessionID) {
		if boardID == keep {
			continue
		}
		err := rooms.Exclusive(boardID, func(room.State) error {
			return d.unsubscribe(sessionID, boardID, false)
		})
		if err != nil && !errors.Is(err, room.ErrRoomNotFound) {
			log.Printf("[%s] Failed to leave board %s: session=%s err=%v", d.hub.Channel(), boardID, sessionID, err)
		}
	}
	d.hub.RoomsChanged()
}

func (d *BoardDispatcher) requestFullState(sessionID, boardID string) error {
	rooms := d.hub.Rooms()
	err := rooms.Exclusive(boardID, func(state room.State) error {
		board, ok := state.(*room.Board)
		if !ok {
			return types.NotFoundf("Board not found: %s", boardID)
		}
		if !rooms.IsMember(boardID, sessionID) {
			return types.Unauthorizedf("You are not connected to this board")
		}
		d.reply(sessionID, types.BoardStateEvent{
			Type:       types.EventFullBoardState,
			BoardID:    boardID,
			BoardState: board.Snapshot(),
		})
		return nil
	})
	return boardErr(boardID, err)
}

func (d *BoardDispatcher) addStroke(sessionID string, c AddStroke) error {
	stroke := *c.Stroke
	if stroke.ID == "" {
		stroke.ID = uuid.New().String()
	}
	if stroke.CreatedAt == 0 {
		stroke.CreatedAt = time.Now().UnixMilli()
	}
	stroke.BoardID = c.BoardID
	stroke.AuthorID = d.actor(sessionID)

	return d.withMember(sessionID, c.BoardID, func(board *room.Board) error {
		board.AddStroke(stroke)
		d.broadcast(c.BoardID, types.StrokeEvent{
			Type:    types.EventStroke,
			BoardID: c.BoardID,
			Stroke:  stroke,
		}, "")
		return nil
	})
}

func (d *BoardDispatcher) undo(sessionID, boardID string) error {
	return d.withMember(sessionID, boardID, func(board *room.Board) error {
		stroke, ok := board.Undo()
		if !ok {
			return types.Validationf("Nothing to undo")
		}
		state := board.Snapshot()
		d.broadcast(boardID, types.StrokeEvent{
			Type:       types.EventStrokeUndone,
			BoardID:    boardID,
			Stroke:     stroke,
			BoardState: &state,
		}, "")
		return nil
	})
}

func (d *BoardDispatcher) redo(sessionID, boardID string) error {
	return d.withMember(sessionID, boardID, func(board *room.Board) error {
		stroke, ok := board.Redo()
		if !ok {
			return types.Validationf("Nothing to redo")
		}
		state := board.Snapshot()
		d.broadcast(boardID, types.StrokeEvent{
			Type:       types.EventStrokeRedone,
			BoardID:    boardID,
			Stroke:     stroke,
			BoardState: &state,
		}, "")
		return nil
	})
}

func (d *BoardDispatcher) clear(sessionID, boardID string) error {
	return d.withMember(sessionID, boardID, func(board *room.Board) error {
		board.Clear()
		d.broadcast(boardID, types.BoardEvent{Type: types.EventBoardCleared, BoardID: boardID}, "")
		return nil
	})
}

func (d *BoardDispatcher) updateSettings(sessionID string, c UpdateBoardSettings) error {
	return d.withMember(sessionID, c.BoardID, func(board *room.Board) error {
		settings := c.Settings.Apply(board.Settings())
		if err := board.UpdateSettings(settings); err != nil {
			return types.Validationf("Invalid board settings: width, height and grid size must be positive and background color set")
		}
		d.broadcast(c.BoardID, types.SettingsEvent{
			Type:     types.EventBoardSettingsUpdated,
			BoardID:  c.BoardID,
			Settings: settings,
		}, "")
		return nil
	})
}

// withMember runs fn with exclusive access to a board the sender belongs to
func (d *BoardDispatcher) withMember(sessionID, boardID string, fn func(*room.Board) error) error {
	rooms := d.hub.Rooms()
	err := rooms.Exclusive(boardID, func(state room.State) error {
		board, ok := state.(*room.Board)
		if !ok {
			return types.NotFoundf("Board not found: %s", boardID)
		}
		if !rooms.IsMember(boardID, sessionID) {
			return types.Unauthorizedf("You are not connected to board: %s", boardID)
		}
		return fn(board)
	})
	return boardErr(boardID, err)
}

// departed tells the remaining members of each board that the session left
func (d *BoardDispatcher) departed(ev hub.Departed) {
	d.limiter.Forget(ev.SessionID)

	userID := ev.UserID
	if userID == "" {
		userID = ev.SessionID
	}
	for _, dep := range ev.Rooms {
		if dep.Evicted {
			continue
		}
		boardID := dep.RoomID
		err := d.hub.Rooms().Exclusive(boardID, func(room.State) error {
			d.broadcast(boardID, types.PresenceEvent{
				Type:    types.EventUserLeft,
				UserID:  userID,
				BoardID: boardID,
			}, ev.SessionID)
			return nil
		})
		if err != nil && !errors.Is(err, room.ErrRoomNotFound) {
			log.Printf("[%s] Failed to announce departure: board=%s err=%v", d.hub.Channel(), boardID, err)
		}
	}
}

// boardErr maps directory misses onto the client-facing not-found error
func boardErr(boardID string, err error) error {
	if errors.Is(err, room.ErrRoomNotFound) {
		return types.NotFoundf("Board not found: %s", boardID)
	}
	return err
}
