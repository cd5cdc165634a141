package router

import (
	"encoding/json"
	"strings"

	"edujam/pkg/types"
)

// Command is one parsed inbound frame. The set of variants is closed; tags a
// channel does not recognize parse to Unknown.
type Command interface {
	Type() string
	command()
}

// validator is implemented by commands with required fields
type validator interface {
	validate() error
}

type sealed struct{}

func (sealed) command() {}

// Liveness, accepted on every channel

type Ping struct{ sealed }
type Pong struct{ sealed }

// Unknown carries a type tag the channel does not handle
type Unknown struct {
	sealed
	Tag string
}

func (Ping) Type() string      { return types.EventPing }
func (Pong) Type() string      { return types.EventPong }
func (c Unknown) Type() string { return c.Tag }

// Board channel

type CreateBoard struct{ sealed }

type JoinBoard struct {
	sealed
	BoardID string `json:"boardId"`
}

type LeaveBoard struct {
	sealed
	BoardID string `json:"boardId"`
}

type RequestFullState struct {
	sealed
	BoardID string `json:"boardId"`
}

type AddStroke struct {
	sealed
	BoardID string        `json:"boardId"`
	Stroke  *types.Stroke `json:"stroke"`
}

type Undo struct {
	sealed
	BoardID string `json:"boardId"`
}

type Redo struct {
	sealed
	BoardID string `json:"boardId"`
}

type ClearBoard struct {
	sealed
	BoardID string `json:"boardId"`
}

type UpdateBoardSettings struct {
	sealed
	BoardID  string         `json:"boardId"`
	Settings *SettingsPatch `json:"settings"`
}

// SettingsPatch is a partial settings update; nil fields keep their value
type SettingsPatch struct {
	Width           *int    `json:"width"`
	Height          *int    `json:"height"`
	BackgroundColor *string `json:"backgroundColor"`
	ShowGrid        *bool   `json:"showGrid"`
	GridSize        *int    `json:"gridSize"`
}

// Apply returns base with the patch's fields overlaid
func (p SettingsPatch) Apply(base types.BoardSettings) types.BoardSettings {
	if p.Width != nil {
		base.Width = *p.Width
	}
	if p.Height != nil {
		base.Height = *p.Height
	}
	if p.BackgroundColor != nil {
		base.BackgroundColor = *p.BackgroundColor
	}
	if p.ShowGrid != nil {
		base.ShowGrid = *p.ShowGrid
	}
	if p.GridSize != nil {
		base.GridSize = *p.GridSize
	}
	return base
}

func (CreateBoard) Type() string         { return "createBoard" }
func (JoinBoard) Type() string           { return "joinBoard" }
func (LeaveBoard) Type() string          { return "leaveBoard" }
func (RequestFullState) Type() string    { return "requestFullState" }
func (AddStroke) Type() string           { return "stroke" }
func (Undo) Type() string                { return "undo" }
func (Redo) Type() string                { return "redo" }
func (ClearBoard) Type() string          { return "clearBoard" }
func (UpdateBoardSettings) Type() string { return "updateBoardSettings" }

func (c JoinBoard) validate() error        { return requireBoardID(c.BoardID) }
func (c LeaveBoard) validate() error       { return requireBoardID(c.BoardID) }
func (c RequestFullState) validate() error { return requireBoardID(c.BoardID) }
func (c Undo) validate() error             { return requireBoardID(c.BoardID) }
func (c Redo) validate() error             { return requireBoardID(c.BoardID) }
func (c ClearBoard) validate() error       { return requireBoardID(c.BoardID) }

func (c AddStroke) validate() error {
	if err := requireBoardID(c.BoardID); err != nil {
		return err
	}
	if c.Stroke == nil {
		return types.Validationf("Stroke is required")
	}
	if err := c.Stroke.Validate(); err != nil {
		return types.Validationf("Stroke must contain at least one point")
	}
	return nil
}

func (c UpdateBoardSettings) validate() error {
	if err := requireBoardID(c.BoardID); err != nil {
		return err
	}
	if c.Settings == nil {
		return types.Validationf("Settings are required")
	}
	return nil
}

func requireBoardID(id string) error {
	if strings.TrimSpace(id) == "" {
		return types.Validationf("Board ID is required")
	}
	return nil
}

// Study-group channel

type ListSubjects struct{ sealed }

type ListGroupsBySubject struct {
	sealed
	Subject string `json:"subject"`
}

type CreateGroup struct {
	sealed
	Name    string `json:"name"`
	Subject string `json:"subject"`
}

type JoinGroup struct {
	sealed
	GroupID string `json:"groupId"`
}

type LeaveGroup struct {
	sealed
	GroupID string `json:"groupId"`
}

type SendGroupChatMessage struct {
	sealed
	GroupID string `json:"groupId"`
	Message string `json:"message"`
}

func (ListSubjects) Type() string         { return "listSubjects" }
func (ListGroupsBySubject) Type() string  { return "listGroupsBySubject" }
func (CreateGroup) Type() string          { return "createGroup" }
func (JoinGroup) Type() string            { return "joinGroup" }
func (LeaveGroup) Type() string           { return "leaveGroup" }
func (SendGroupChatMessage) Type() string { return "sendGroupChatMessage" }

func (c ListGroupsBySubject) validate() error { return requireSubject(c.Subject) }

func (c CreateGroup) validate() error {
	if !types.IsValidGroupName(c.Name) {
		return types.Validationf("Group name must be 1-100 characters")
	}
	return requireSubject(c.Subject)
}

func (c JoinGroup) validate() error  { return requireGroupID(c.GroupID) }
func (c LeaveGroup) validate() error { return requireGroupID(c.GroupID) }

func (c SendGroupChatMessage) validate() error {
	if strings.TrimSpace(c.GroupID) == "" || strings.TrimSpace(c.Message) == "" {
		return types.Validationf("Group ID and message are required")
	}
	return nil
}

func requireSubject(subject string) error {
	if subject == "" {
		return types.Validationf("Subject is required")
	}
	if !types.IsValidSubject(subject) {
		return types.Validationf("Invalid subject: %s", subject)
	}
	return nil
}

func requireGroupID(id string) error {
	if strings.TrimSpace(id) == "" {
		return types.Validationf("Group ID is required")
	}
	return nil
}

// Chat channel

// Register binds the connection to a conversation id chosen by the client
type Register struct {
	sealed
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
}

// SendMessage asks the tutor a question. SessionID may be omitted after Register.
type SendMessage struct {
	sealed
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type GetHistory struct {
	sealed
	SessionID string `json:"sessionId"`
}

type InitFileUpload struct {
	sealed
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

type FileUploadComplete struct {
	sealed
	FileID string `json:"fileId"`
}

type CancelFileUpload struct {
	sealed
	FileID string `json:"fileId"`
}

func (Register) Type() string           { return "register" }
func (SendMessage) Type() string        { return "message" }
func (GetHistory) Type() string         { return "getHistory" }
func (InitFileUpload) Type() string     { return "initFileUpload" }
func (FileUploadComplete) Type() string { return "fileUploadComplete" }
func (CancelFileUpload) Type() string   { return "cancelFileUpload" }

func (c Register) validate() error {
	if strings.TrimSpace(c.SessionID) == "" || strings.TrimSpace(c.Username) == "" {
		return types.Validationf("Session ID and username are required")
	}
	return nil
}

func (c InitFileUpload) validate() error {
	if strings.TrimSpace(c.FileName) == "" {
		return types.Validationf("File name is required")
	}
	if !types.IsAllowedUploadType(c.MimeType) {
		return types.Validationf("File type not allowed. Only PDF, DOCX, and images are supported.")
	}
	return nil
}

func (c FileUploadComplete) validate() error { return requireFileID(c.FileID) }
func (c CancelFileUpload) validate() error   { return requireFileID(c.FileID) }

func requireFileID(id string) error {
	if id == "" {
		return types.Validationf("File ID is required")
	}
	return nil
}

// Parsing

type decodeFunc func(frame []byte) (Command, error)

func decode[T Command](frame []byte) (Command, error) {
	var cmd T
	if err := json.Unmarshal(frame, &cmd); err != nil {
		return nil, errInvalidFormat
	}
	return cmd, nil
}

var liveness = map[string]decodeFunc{
	types.EventPing: decode[Ping],
	types.EventPong: decode[Pong],
}

var boardCommands = withLiveness(map[string]decodeFunc{
	"createBoard":         decode[CreateBoard],
	"joinBoard":           decode[JoinBoard],
	"leaveBoard":          decode[LeaveBoard],
	"requestFullState":    decode[RequestFullState],
	"stroke":              decode[AddStroke],
	"undo":                decode[Undo],
	"redo":                decode[Redo],
	"clearBoard":          decode[ClearBoard],
	"updateBoardSettings": decode[UpdateBoardSettings],
})

var groupCommands = withLiveness(map[string]decodeFunc{
	"listSubjects":         decode[ListSubjects],
	"listGroupsBySubject":  decode[ListGroupsBySubject],
	"createGroup":          decode[CreateGroup],
	"joinGroup":            decode[JoinGroup],
	"leaveGroup":           decode[LeaveGroup],
	"sendGroupChatMessage": decode[SendGroupChatMessage],
})

var chatCommands = withLiveness(map[string]decodeFunc{
	"register":           decode[Register],
	"message":            decode[SendMessage],
	"getHistory":         decode[GetHistory],
	"initFileUpload":     decode[InitFileUpload],
	"fileUploadComplete": decode[FileUploadComplete],
	"cancelFileUpload":   decode[CancelFileUpload],
})

func withLiveness(m map[string]decodeFunc) map[string]decodeFunc {
	for tag, fn := range liveness {
		m[tag] = fn
	}
	return m
}

// ParseBoardCommand decodes a board channel frame
func ParseBoardCommand(frame []byte) (Command, error) {
	return parse(boardCommands, frame)
}

// ParseGroupCommand decodes a study-group channel frame
func ParseGroupCommand(frame []byte) (Command, error) {
	return parse(groupCommands, frame)
}

// ParseChatCommand decodes a chat channel frame
func ParseChatCommand(frame []byte) (Command, error) {
	return parse(chatCommands, frame)
}

// parse reads the type tag, decodes the matching variant and checks its
// required fields. Unrecognized tags return Unknown with a nil error.
func parse(table map[string]decodeFunc, frame []byte) (Command, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, errInvalidFormat
	}
	if envelope.Type == "" {
		return nil, errMissingType
	}

	fn, ok := table[envelope.Type]
	if !ok {
		return Unknown{Tag: envelope.Type}, nil
	}
	cmd, err := fn(frame)
	if err != nil {
		return nil, err
	}
	if v, ok := cmd.(validator); ok {
		if err := v.validate(); err != nil {
			return cmd, err
		}
	}
	return cmd, nil
}
