package router

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edujam/internal/ai"
	"edujam/internal/hub"
	"edujam/internal/metrics"
	"edujam/internal/upload"
	"edujam/pkg/types"
)

type memoryStore struct {
	mu       sync.Mutex
	messages []*types.ChatMessage
	saveErr  error
}

func (m *memoryStore) SaveChatMessage(ctx context.Context, msg *types.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memoryStore) ChatHistory(ctx context.Context, conversationID string) ([]*types.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.ChatMessage
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memoryStore) HealthCheck(ctx context.Context) error { return nil }

type memoryBlobs struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memoryBlobs) Store(ctx context.Context, data []byte, meta types.FileMetadata) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[meta.FileID] = append([]byte(nil), data...)
	return meta.FileID, nil
}

func (m *memoryBlobs) URL(fileID string) string { return "http://files.test/" + fileID }

func (m *memoryBlobs) Delete(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, fileID)
	return nil
}

func (m *memoryBlobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

type chatHarness struct {
	hub     *hub.Hub
	d       *ChatDispatcher
	store   *memoryStore
	blobs   *memoryBlobs
	uploads *upload.Tracker
}

func newChatHarness(t *testing.T, responder ai.StaticResponder) *chatHarness {
	t.Helper()
	ch := &chatHarness{
		hub:     newTestHub(types.ChannelChat),
		store:   &memoryStore{},
		blobs:   &memoryBlobs{},
		uploads: upload.NewTracker(1024),
	}
	d, err := NewChatDispatcher(ch.hub, 0, ch.store, responder, ch.blobs, ch.uploads)
	require.NoError(t, err)
	ch.d = d
	return ch
}

func (ch *chatHarness) initUpload(t *testing.T, conn *fakeConn, name, mime string, size int) string {
	t.Helper()
	send(t, ch.d, "s1", map[string]interface{}{"type": "initFileUpload", "fileName": name, "mimeType": mime, "fileSize": size})
	var ev types.FileUploadInitializedEvent
	conn.last(t, types.EventFileUploadInitialized, &ev)
	require.True(t, ev.Ready)
	return ev.FileID
}

func TestNewChatDispatcher_RequiresCollaborators(t *testing.T) {
	h := newTestHub(types.ChannelChat)
	tracker := upload.NewTracker(1)

	_, err := NewChatDispatcher(h, 0, nil, ai.StaticResponder{}, &memoryBlobs{}, tracker)
	assert.ErrorIs(t, err, ErrNilChatStore)
	_, err = NewChatDispatcher(h, 0, &memoryStore{}, nil, &memoryBlobs{}, tracker)
	assert.ErrorIs(t, err, ErrNilResponder)
	_, err = NewChatDispatcher(h, 0, &memoryStore{}, ai.StaticResponder{}, nil, tracker)
	assert.ErrorIs(t, err, ErrNilBlobStore)
	_, err = NewChatDispatcher(h, 0, &memoryStore{}, ai.StaticResponder{}, &memoryBlobs{}, nil)
	assert.ErrorIs(t, err, ErrNilTracker)
}

func TestChatDispatcher_RegisterAndAsk(t *testing.T) {
	ch := newChatHarness(t, ai.StaticResponder{Reply: "A derivative is a rate of change."})
	c := connect(t, ch.hub, "s1", "")

	send(t, ch.d, "s1", map[string]interface{}{"type": "register", "sessionId": "conv-1", "username": "ada"})
	var reg types.RegisteredEvent
	c.last(t, types.EventRegistered, &reg)
	assert.Equal(t, types.RegisteredEvent{Type: types.EventRegistered, SessionID: "conv-1", Username: "ada"}, reg)

	c.reset()
	send(t, ch.d, "s1", map[string]interface{}{"type": "message", "message": "What is a derivative?"})
	assert.Equal(t, []string{"message", "typing", "typing", "message"}, c.tags())

	var answer types.ChatMessageEvent
	c.last(t, types.EventMessage, &answer)
	assert.Equal(t, types.ChatContent{Content: "A derivative is a rate of change."}, answer.Message)

	history, _ := ch.store.ChatHistory(context.Background(), "conv-1")
	require.Len(t, history, 2)
	assert.True(t, history[0].FromUser)
	assert.Equal(t, "ada", history[0].Sender)
	assert.Equal(t, "AI", history[1].Sender)
}

func TestChatDispatcher_MessageNeedsConversation(t *testing.T) {
	ch := newChatHarness(t, ai.StaticResponder{Reply: "x"})
	c := connect(t, ch.hub, "s1", "")

	send(t, ch.d, "s1", map[string]interface{}{"type": "message", "message": "hi"})
	assert.Equal(t, "Session ID and message are required", c.lastError())

	send(t, ch.d, "s1", map[string]interface{}{"type": "getHistory"})
	assert.Equal(t, "Session ID is required", c.lastError())
}

func TestChatDispatcher_AIFailureSendsFallback(t *testing.T) {
	ch := newChatHarness(t, ai.StaticResponder{Err: errors.New("upstream down")})
	c := connect(t, ch.hub, "s1", "")

	send(t, ch.d, "s1", map[string]interface{}{"type": "message", "sessionId": "conv-1", "message": "hi"})

	var answer types.ChatMessageEvent
	c.last(t, types.EventMessage, &answer)
	assert.Equal(t, "Sorry, I encountered an error. Please try again.", answer.Message.Content)
	assert.Zero(t, c.count(types.EventError))
}

func TestChatDispatcher_History(t *testing.T) {
	ch := newChatHarness(t, ai.StaticResponder{Reply: "pong"})
	c := connect(t, ch.hub, "s1", "")

	send(t, ch.d, "s1", map[string]interface{}{"type": "getHistory", "sessionId": "empty"})
	var empty types.HistoryEvent
	c.last(t, types.EventHistory, &empty)
	assert.NotNil(t, empty.Messages)
	assert.Empty(t, empty.Messages)

	send(t, ch.d, "s1", map[string]interface{}{"type": "message", "sessionId": "conv-9", "message": "ping?"})
	send(t, ch.d, "s1", map[string]interface{}{"type": "getHistory", "sessionId": "conv-9"})
	var ev types.HistoryEvent
	c.last(t, types.EventHistory, &ev)
	require.Len(t, ev.Messages, 2)
	assert.Equal(t, "ping?", ev.Messages[0].Content)
	assert.Equal(t, "pong", ev.Messages[1].Content)
}

func TestChatDispatcher_ChunkedDocumentUpload(t *testing.T) {
	ch := newChatHarness(t, ai.StaticResponder{Reply: "Summary: chapter one covers limits."})
	c := connect(t, ch.hub, "s1", "")
	send(t, ch.d, "s1", map[string]interface{}{"type": "register", "sessionId": "conv-1", "username": "ada"})

	fileID := ch.initUpload(t, c, "notes.pdf", types.MimePDF, 10)

	ch.d.DispatchBinary(context.Background(), "s1", []byte("%PDF-"))
	var progress types.FileUploadProgressEvent
	c.last(t, types.EventFileUploadProgress, &progress)
	assert.Equal(t, types.FileUploadProgressEvent{
		Type: types.EventFileUploadProgress, FileID: fileID, BytesUploaded: 5, TotalSize: 10, PercentComplete: 50,
	}, progress)

	c.reset()
	ch.d.DispatchBinary(context.Background(), "s1", []byte("1.4\n\n"))
	assert.Equal(t, []string{"fileUploadProgress", "message", "typing", "typing", "message"}, c.tags())

	assert.Equal(t, "%PDF-1.4\n\n", string(ch.blobs.files[fileID]))

	history, _ := ch.store.ChatHistory(context.Background(), "conv-1")
	require.Len(t, history, 2)
	assert.Equal(t, "[File: notes.pdf](http://files.test/"+fileID+")", history[0].Content)
	assert.Equal(t, "http://files.test/"+fileID, history[0].FileURL)
	assert.Equal(t, "Summary: chapter one covers limits.", history[1].Content)

	send(t, ch.d, "s1", map[string]interface{}{"type": "fileUploadComplete", "fileId": fileID})
	assert.Equal(t, "No matching file upload found", c.lastError())
}

func TestChatDispatcher_ImageUploadSkipsTutor(t *testing.T) {
	ch := newChatHarness(t, ai.StaticResponder{Reply: "unused"})
	c := connect(t, ch.hub, "s1", "")

	fileID := ch.initUpload(t, c, "diagram.png", "image/png", 3)
	ch.d.DispatchBinary(context.Background(), "s1", []byte("png"))

	var msg types.ChatMessageEvent
	c.last(t, types.EventMessage, &msg)
	assert.Equal(t, "diagram.png", msg.Message.FileName)
	assert.Equal(t, "image/png", msg.Message.MimeType)
	assert.Zero(t, c.count(types.EventTyping))

	history, _ := ch.store.ChatHistory(context.Background(), "s1")
	require.Len(t, history, 1, "unregistered sessions use their session id as conversation")
	assert.Contains(t, history[0].Content, fileID)
}

func TestChatDispatcher_UnsavedUploadIsRemoved(t *testing.T) {
	ch := newChatHarness(t, ai.StaticResponder{Reply: "unused"})
	ch.store.saveErr = errors.New("database is locked")
	c := connect(t, ch.hub, "s1", "")

	ch.initUpload(t, c, "diagram.png", "image/png", 3)
	ch.d.DispatchBinary(context.Background(), "s1", []byte("png"))

	assert.Equal(t, "Internal error processing message", c.lastError())
	assert.Zero(t, c.count(types.EventMessage))
	assert.Zero(t, ch.blobs.count(), "stored file is deleted when its message cannot be saved")
	assert.Zero(t, ch.uploads.Active())
}

func TestChatDispatcher_UploadErrors(t *testing.T) {
	ch := newChatHarness(t, ai.StaticResponder{Reply: "x"})
	c := connect(t, ch.hub, "s1", "")

	ch.d.DispatchBinary(context.Background(), "s1", []byte("stray"))
	assert.Equal(t, "No active file upload", c.lastError())

	send(t, ch.d, "s1", map[string]interface{}{"type": "initFileUpload", "fileName": "run.sh", "mimeType": "text/x-sh", "fileSize": 10})
	assert.Equal(t, "File type not allowed. Only PDF, DOCX, and images are supported.", c.lastError())

	send(t, ch.d, "s1", map[string]interface{}{"type": "initFileUpload", "fileName": "big.pdf", "mimeType": types.MimePDF, "fileSize": 4096})
	assert.Equal(t, "File size must be between 1 and 1024 bytes", c.lastError())

	ch.initUpload(t, c, "small.png", "image/png", 2)
	ch.d.DispatchBinary(context.Background(), "s1", []byte("toolong"))
	assert.Equal(t, "File data exceeds the declared size", c.lastError())
	assert.Zero(t, ch.uploads.Active())
}

func TestChatDispatcher_CancelUpload(t *testing.T) {
	ch := newChatHarness(t, ai.StaticResponder{Reply: "x"})
	c := connect(t, ch.hub, "s1", "")
	fileID := ch.initUpload(t, c, "a.png", "image/png", 100)

	send(t, ch.d, "s1", map[string]interface{}{"type": "cancelFileUpload", "fileId": fileID})
	var ev types.FileUploadCancelledEvent
	c.last(t, types.EventFileUploadCancelled, &ev)
	assert.Equal(t, fileID, ev.FileID)

	send(t, ch.d, "s1", map[string]interface{}{"type": "fileUploadComplete", "fileId": fileID})
	assert.Equal(t, "No matching file upload found", c.lastError())
}

func TestChatDispatcher_DepartureDiscardsPartialUpload(t *testing.T) {
	ch := newChatHarness(t, ai.StaticResponder{Reply: "x"})
	c := connect(t, ch.hub, "s1", "")
	send(t, ch.d, "s1", map[string]interface{}{"type": "register", "sessionId": "conv-1", "username": "ada"})
	ch.initUpload(t, c, "a.png", "image/png", 100)
	ch.d.DispatchBinary(context.Background(), "s1", []byte("half"))

	require.True(t, ch.hub.Evict("s1", metrics.ReasonDisconnect))
	assert.Zero(t, ch.uploads.Active())
	assert.Empty(t, ch.d.conversationOf("s1", "").id)
}
