package types

// Board channel event tags
const (
	EventBoardCreated         = "boardCreated"
	EventBoardJoined          = "boardJoined"
	EventBoardLeft            = "boardLeft"
	EventFullBoardState       = "fullBoardState"
	EventStroke               = "stroke"
	EventStrokeUndone         = "strokeUndone"
	EventStrokeRedone         = "strokeRedone"
	EventBoardCleared         = "boardCleared"
	EventBoardSettingsUpdated = "boardSettingsUpdated"
)

// Study-group channel event tags
const (
	EventSubjectsList     = "subjectsList"
	EventGroupsList       = "groupsList"
	EventGroupsListUpdate = "groupsListUpdate"
	EventGroupCreated     = "groupCreated"
	EventGroupJoined      = "groupJoined"
	EventGroupLeft        = "groupLeft"
	EventGroupChatMessage = "groupChatMessage"
)

// Chat channel event tags
const (
	EventRegistered            = "registered"
	EventMessage               = "message"
	EventTyping                = "typing"
	EventHistory               = "history"
	EventFileUploadInitialized = "fileUploadInitialized"
	EventFileUploadProgress    = "fileUploadProgress"
	EventFileUploadCancelled   = "fileUploadCancelled"
)

// BoardStateEvent carries a full board snapshot
type BoardStateEvent struct {
	Type       string     `json:"type"`
	BoardID    string     `json:"boardId"`
	BoardState BoardState `json:"boardState"`
}

// BoardEvent names a board and nothing else
type BoardEvent struct {
	Type    string `json:"type"`
	BoardID string `json:"boardId"`
}

// PresenceEvent announces a user entering or leaving a board or group
type PresenceEvent struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	BoardID string `json:"boardId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
}

// StrokeEvent carries one stroke. Undo and redo also attach the resulting
// board state.
type StrokeEvent struct {
	Type       string      `json:"type"`
	BoardID    string      `json:"boardId"`
	Stroke     Stroke      `json:"stroke"`
	BoardState *BoardState `json:"boardState,omitempty"`
}

type SettingsEvent struct {
	Type     string        `json:"type"`
	BoardID  string        `json:"boardId"`
	Settings BoardSettings `json:"settings"`
}

type SubjectsEvent struct {
	Type     string   `json:"type"`
	Subjects []string `json:"subjects"`
}

// GroupsListEvent lists the active groups of one subject
type GroupsListEvent struct {
	Type    string      `json:"type"`
	Subject string      `json:"subject"`
	Groups  []GroupInfo `json:"groups"`
}

type GroupEvent struct {
	Type  string    `json:"type"`
	Group GroupInfo `json:"group"`
}

type GroupLeftEvent struct {
	Type    string `json:"type"`
	GroupID string `json:"groupId"`
}

type GroupChatEvent struct {
	Type      string `json:"type"`
	GroupID   string `json:"groupId"`
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

type RegisteredEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
}

// ChatContent is the body of a chat message frame
type ChatContent struct {
	Content  string `json:"content"`
	FromUser bool   `json:"fromUser"`
	FileURL  string `json:"fileUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

type ChatMessageEvent struct {
	Type    string      `json:"type"`
	Message ChatContent `json:"message"`
}

type TypingEvent struct {
	Type   string `json:"type"`
	Status bool   `json:"status"`
}

type HistoryEvent struct {
	Type     string         `json:"type"`
	Messages []*ChatMessage `json:"messages"`
}

type FileUploadInitializedEvent struct {
	Type     string `json:"type"`
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Ready    bool   `json:"ready"`
}

type FileUploadProgressEvent struct {
	Type            string `json:"type"`
	FileID          string `json:"fileId"`
	BytesUploaded   int64  `json:"bytesUploaded"`
	TotalSize       int64  `json:"totalSize"`
	PercentComplete int    `json:"percentComplete"`
}

type FileUploadCancelledEvent struct {
	Type   string `json:"type"`
	FileID string `json:"fileId"`
}
