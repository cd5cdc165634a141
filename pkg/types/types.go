package types

import (
	"time"
)

// Channel names, one engine instance per channel
const (
	ChannelBoard = "board"
	ChannelGroup = "group"
	ChannelChat  = "chat"
)

// Outbound event type tags shared by more than one channel
const (
	EventError      = "error"
	EventPing       = "ping"
	EventPong       = "pong"
	EventUserJoined = "userJoined"
	EventUserLeft   = "userLeft"
)

// Default board canvas and group limits
const (
	DefaultBoardWidth      = 800
	DefaultBoardHeight     = 600
	DefaultBackgroundColor = "#FFFFFF"
	DefaultGridSize        = 20
	DefaultMaxParticipants = 10
)

// Subjects are the topic tags a study group may carry, in display order
var Subjects = []string{"Math", "English", "Science", "Technology", "Social Studies"}

// Point is one sampled position of a stroke
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is a single drawing operation on a board
// FUNCTIONAL DISCOVERY: Stroke is immutable once added; undo/redo move the
// same value between board stacks rather than copying or editing it
type Stroke struct {
	ID        string  `json:"id"`
	BoardID   string  `json:"boardId"`
	AuthorID  string  `json:"authorId,omitempty"`
	Points    []Point `json:"points"`
	Color     string  `json:"color"`
	Width     float64 `json:"width"`
	CreatedAt int64   `json:"timestamp"` // unix millis
}

// BoardSettings holds the canvas configuration of a board
type BoardSettings struct {
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	BackgroundColor string `json:"backgroundColor"`
	ShowGrid        bool   `json:"showGrid"`
	GridSize        int    `json:"gridSize"`
}

// DefaultBoardSettings returns the canvas a new board starts with
func DefaultBoardSettings() BoardSettings {
	return BoardSettings{
		Width:           DefaultBoardWidth,
		Height:          DefaultBoardHeight,
		BackgroundColor: DefaultBackgroundColor,
		ShowGrid:        false,
		GridSize:        DefaultGridSize,
	}
}

// BoardState is the wire form of a board: visible strokes plus settings
type BoardState struct {
	Strokes  []Stroke      `json:"strokes"`
	Settings BoardSettings `json:"settings"`
}

// GroupInfo is a read-only view of a study group
type GroupInfo struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Subject             string    `json:"subject"`
	BoardID             string    `json:"boardId"`
	CreatorID           string    `json:"creatorId"`
	CreatedAt           time.Time `json:"createdAt"`
	MaxParticipants     int       `json:"maxParticipants"`
	CurrentParticipants int       `json:"currentParticipants"`
	ParticipantIDs      []string  `json:"participantIds"`
	Active              bool      `json:"active"`
	Full                bool      `json:"full"`
}

// ChatMessage is one entry of an AI tutor conversation
// ARCHITECTURAL DISCOVERY: File fields are optional and only set for
// attachment messages so plain text history stays compact on the wire
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"sessionId"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	FromUser       bool      `json:"fromUser"`
	FileURL        string    `json:"fileUrl,omitempty"`
	FileName       string    `json:"fileName,omitempty"`
	MimeType       string    `json:"mimeType,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// FileMetadata describes a stored blob
type FileMetadata struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// ErrorEvent is the uniform error frame sent to a single session
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorEvent builds an error frame
func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}

// SimpleEvent is a frame that carries nothing but its type tag
type SimpleEvent struct {
	Type string `json:"type"`
}
