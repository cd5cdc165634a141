package room

import (
	"fmt"
	"sync"

	"edujam/pkg/types"
)

// Kind distinguishes the Room State variants
type Kind string

const (
	KindBoard Kind = "board"
	KindGroup Kind = "group"
)

// State is the lifecycle contract shared by every room variant.
// markEvicted is called once by the Directory when the room is removed.
type State interface {
	ID() string
	Kind() Kind
	markEvicted()
}

// Board is a shared drawing surface with undo/redo history
// ARCHITECTURAL DISCOVERY: strokes and undoStack hold the same sequence; the
// stacks are kept separately so undo pops in O(1) and redo has its own LIFO
type Board struct {
	id string

	mu        sync.RWMutex
	strokes   []types.Stroke
	undoStack []types.Stroke
	redoStack []types.Stroke
	settings  types.BoardSettings
}

// NewBoard creates an empty board with default canvas settings
func NewBoard(id string) *Board {
	return &Board{
		id:       id,
		settings: types.DefaultBoardSettings(),
	}
}

func (b *Board) ID() string   { return b.id }
func (b *Board) Kind() Kind   { return KindBoard }
func (b *Board) markEvicted() {}

// AddStroke appends a stroke and starts a new redo history
func (b *Board) AddStroke(stroke types.Stroke) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.strokes = append(b.strokes, stroke)
	b.undoStack = append(b.undoStack, stroke)
	b.redoStack = nil
}

// Undo removes the most recently visible stroke and returns it.
// ok is false when there is nothing to undo.
func (b *Board) Undo() (stroke types.Stroke, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.undoStack) == 0 {
		return types.Stroke{}, false
	}

	top := len(b.undoStack) - 1
	stroke = b.undoStack[top]
	b.undoStack = b.undoStack[:top]
	b.strokes = removeLast(b.strokes, stroke.ID)
	b.redoStack = append(b.redoStack, stroke)

	return stroke, true
}

// Redo restores the most recently undone stroke and returns it.
// ok is false when the redo history is empty.
func (b *Board) Redo() (stroke types.Stroke, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.redoStack) == 0 {
		return types.Stroke{}, false
	}

	top := len(b.redoStack) - 1
	stroke = b.redoStack[top]
	b.redoStack = b.redoStack[:top]
	b.strokes = append(b.strokes, stroke)
	b.undoStack = append(b.undoStack, stroke)

	return stroke, true
}

// Clear empties the board and both histories
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.strokes = nil
	b.undoStack = nil
	b.redoStack = nil
}

// UpdateSettings replaces the canvas settings after validating them.
// On error the board is left unchanged.
func (b *Board) UpdateSettings(settings types.BoardSettings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("board %s: %w", b.id, err)
	}

	b.mu.Lock()
	b.settings = settings
	b.mu.Unlock()
	return nil
}

// Settings returns the current canvas settings
func (b *Board) Settings() types.BoardSettings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// Strokes returns a copy of the visible strokes in drawing order
func (b *Board) Strokes() []types.Stroke {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyStrokes(b.strokes)
}

// Snapshot returns strokes and settings read under one lock
func (b *Board) Snapshot() types.BoardState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return types.BoardState{
		Strokes:  copyStrokes(b.strokes),
		Settings: b.settings,
	}
}

func copyStrokes(src []types.Stroke) []types.Stroke {
	out := make([]types.Stroke, len(src))
	copy(out, src)
	return out
}

// removeLast drops the last stroke with the given id
func removeLast(strokes []types.Stroke, id string) []types.Stroke {
	for i := len(strokes) - 1; i >= 0; i-- {
		if strokes[i].ID == id {
			return append(strokes[:i], strokes[i+1:]...)
		}
	}
	return strokes
}
