package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"edujam/internal/hub"
	"edujam/internal/upload"
	"edujam/pkg/interfaces"
	"edujam/pkg/types"
)

// Replies used when the tutor cannot answer
const (
	aiErrorReply   = "Sorry, I encountered an error. Please try again."
	fileErrorReply = "I couldn't process this file. Please try again or upload a different document."
	aiSender       = "AI"
	chunkCommand   = "fileChunk"
)

// ChatDispatcher handles the AI tutor channel
// ARCHITECTURAL DISCOVERY: The tutor call runs on the requesting session's
// own read goroutine, so a slow answer only delays that session
type ChatDispatcher struct {
	base
	store     interfaces.ChatStore
	responder interfaces.AIResponder
	blobs     interfaces.BlobStore
	uploads   *upload.Tracker

	mu            sync.RWMutex
	conversations map[string]conversation // sessionID -> registered conversation
}

type conversation struct {
	id       string
	username string
}

// NewChatDispatcher wires a dispatcher to the chat hub and its collaborators
func NewChatDispatcher(h *hub.Hub, commandsPerMinute int, store interfaces.ChatStore, responder interfaces.AIResponder, blobs interfaces.BlobStore, uploads *upload.Tracker) (*ChatDispatcher, error) {
	b, err := newBase(h, commandsPerMinute)
	if err != nil {
		return nil, err
	}
	switch {
	case store == nil:
		return nil, ErrNilChatStore
	case responder == nil:
		return nil, ErrNilResponder
	case blobs == nil:
		return nil, ErrNilBlobStore
	case uploads == nil:
		return nil, ErrNilTracker
	}

	d := &ChatDispatcher{
		base:          b,
		store:         store,
		responder:     responder,
		blobs:         blobs,
		uploads:       uploads,
		conversations: make(map[string]conversation),
	}
	h.OnDepart(d.departed)
	return d, nil
}

// Dispatch handles one text frame from sessionID
func (d *ChatDispatcher) Dispatch(ctx context.Context, sessionID string, frame []byte) {
	cmd, ok := d.admit(sessionID, frame, ParseChatCommand)
	if !ok {
		return
	}
	d.finish(sessionID, cmd.Type(), d.handle(ctx, sessionID, cmd))
}

// DispatchBinary appends one upload chunk. Chunks are not charged to the
// command budget.
func (d *ChatDispatcher) DispatchBinary(ctx context.Context, sessionID string, data []byte) {
	d.finish(sessionID, chunkCommand, d.appendChunk(ctx, sessionID, data))
}

func (d *ChatDispatcher) handle(ctx context.Context, sessionID string, cmd Command) error {
	switch c := cmd.(type) {
	case Register:
		return d.register(sessionID, c)
	case SendMessage:
		return d.message(ctx, sessionID, c)
	case GetHistory:
		return d.history(ctx, sessionID, c.SessionID)
	case InitFileUpload:
		return d.initUpload(sessionID, c)
	case FileUploadComplete:
		return d.completeUpload(ctx, sessionID, c.FileID)
	case CancelFileUpload:
		if err := d.uploads.Cancel(sessionID, c.FileID); err != nil {
			return types.Validationf("No matching file upload found")
		}
		d.reply(sessionID, types.FileUploadCancelledEvent{Type: types.EventFileUploadCancelled, FileID: c.FileID})
		return nil
	case Ping:
		d.reply(sessionID, types.SimpleEvent{Type: types.EventPong})
		return nil
	case Pong:
		return nil
	default:
		return types.UnknownCommandf("Unknown message type: %s", cmd.Type())
	}
}

func (d *ChatDispatcher) register(sessionID string, c Register) error {
	d.mu.Lock()
	d.conversations[sessionID] = conversation{id: c.SessionID, username: c.Username}
	d.mu.Unlock()

	log.Printf("[%s] Registered conversation: session=%s conversation=%s user=%s", d.hub.Channel(), sessionID, c.SessionID, c.Username)
	d.reply(sessionID, types.RegisteredEvent{
		Type:      types.EventRegistered,
		SessionID: c.SessionID,
		Username:  c.Username,
	})
	return nil
}

// conversationOf resolves the conversation a command refers to: the explicit
// id if given, else the one the session registered
func (d *ChatDispatcher) conversationOf(sessionID, explicit string) conversation {
	d.mu.RLock()
	conv := d.conversations[sessionID]
	d.mu.RUnlock()
	if explicit != "" {
		conv.id = explicit
	}
	return conv
}

// message stores the question, asks the tutor and relays its answer
func (d *ChatDispatcher) message(ctx context.Context, sessionID string, c SendMessage) error {
	conv := d.conversationOf(sessionID, c.SessionID)
	if conv.id == "" || strings.TrimSpace(c.Message) == "" {
		return types.Validationf("Session ID and message are required")
	}

	d.save(ctx, newChatMessage(conv.id, senderName(conv), types.ChatContent{Content: c.Message, FromUser: true}))
	d.reply(sessionID, types.ChatMessageEvent{
		Type:    types.EventMessage,
		Message: types.ChatContent{Content: c.Message, FromUser: true},
	})

	d.answer(ctx, sessionID, conv.id, c.Message, aiErrorReply)
	return nil
}

// answer asks the tutor, framed by typing indicators, and stores the reply.
// On failure the fallback text is sent instead.
func (d *ChatDispatcher) answer(ctx context.Context, sessionID, conversationID, prompt, fallback string) {
	d.reply(sessionID, types.TypingEvent{Type: types.EventTyping, Status: true})
	reply, err := d.responder.Complete(ctx, prompt)
	d.reply(sessionID, types.TypingEvent{Type: types.EventTyping, Status: false})

	if err != nil {
		log.Printf("[%s] AI reply failed: session=%s err=%v", d.hub.Channel(), sessionID, err)
		reply = fallback
	}

	content := types.ChatContent{Content: reply}
	d.save(ctx, newChatMessage(conversationID, aiSender, content))
	d.reply(sessionID, types.ChatMessageEvent{Type: types.EventMessage, Message: content})
}

func (d *ChatDispatcher) history(ctx context.Context, sessionID, explicit string) error {
	conv := d.conversationOf(sessionID, explicit)
	if conv.id == "" {
		return types.Validationf("Session ID is required")
	}

	messages, err := d.store.ChatHistory(ctx, conv.id)
	if err != nil {
		return fmt.Errorf("load history for %s: %w", conv.id, err)
	}
	if messages == nil {
		messages = []*types.ChatMessage{}
	}
	d.reply(sessionID, types.HistoryEvent{Type: types.EventHistory, Messages: messages})
	return nil
}

func (d *ChatDispatcher) initUpload(sessionID string, c InitFileUpload) error {
	u, err := d.uploads.Begin(sessionID, c.FileName, c.MimeType, c.FileSize)
	if err != nil {
		return types.Validationf("File size must be between 1 and %d bytes", d.uploads.MaxSize())
	}

	log.Printf("[%s] Upload started: session=%s file=%s name=%s size=%d", d.hub.Channel(), sessionID, u.FileID, u.FileName, u.TotalSize)
	d.reply(sessionID, types.FileUploadInitializedEvent{
		Type:     types.EventFileUploadInitialized,
		FileID:   u.FileID,
		FileName: u.FileName,
		Ready:    true,
	})
	return nil
}

func (d *ChatDispatcher) appendChunk(ctx context.Context, sessionID string, data []byte) error {
	progress, err := d.uploads.Append(sessionID, data)
	switch {
	case errors.Is(err, upload.ErrNoActiveUpload):
		return types.Validationf("No active file upload")
	case errors.Is(err, upload.ErrUploadOverflow):
		return types.Validationf("File data exceeds the declared size")
	case err != nil:
		return err
	}

	d.reply(sessionID, types.FileUploadProgressEvent{
		Type:            types.EventFileUploadProgress,
		FileID:          progress.FileID,
		BytesUploaded:   progress.BytesUploaded,
		TotalSize:       progress.TotalSize,
		PercentComplete: progress.PercentComplete,
	})

	if progress.Complete {
		return d.completeUpload(ctx, sessionID, progress.FileID)
	}
	return nil
}

// completeUpload stores a finished upload, posts it to the conversation and
// asks the tutor to summarize documents
func (d *ChatDispatcher) completeUpload(ctx context.Context, sessionID, fileID string) error {
	u, err := d.uploads.Take(sessionID, fileID)
	if err != nil {
		return types.Validationf("No matching file upload found")
	}

	storedID, err := d.blobs.Store(ctx, u.Bytes(), types.FileMetadata{
		FileID:   u.FileID,
		FileName: u.FileName,
		MimeType: u.MimeType,
	})
	if err != nil {
		return fmt.Errorf("store upload %s: %w", u.FileID, err)
	}
	url := d.blobs.URL(storedID)

	conv := d.conversationOf(sessionID, "")
	if conv.id == "" {
		conv.id = sessionID
	}

	content := types.ChatContent{
		Content:  fmt.Sprintf("[File: %s](%s)", u.FileName, url),
		FromUser: true,
		FileURL:  url,
		FileName: u.FileName,
		MimeType: u.MimeType,
	}
	// A file nobody's history points at is removed again
	if err := d.store.SaveChatMessage(ctx, newChatMessage(conv.id, senderName(conv), content)); err != nil {
		if delErr := d.blobs.Delete(ctx, storedID); delErr != nil {
			log.Printf("[%s] Failed to remove unreferenced upload %s: %v", d.hub.Channel(), storedID, delErr)
		}
		return fmt.Errorf("save upload message %s: %w", u.FileID, err)
	}
	d.reply(sessionID, types.ChatMessageEvent{Type: types.EventMessage, Message: content})

	if types.IsDocument(u.MimeType) {
		prompt := fmt.Sprintf("I've uploaded a document named %q. Please summarize this document and help me understand the key points.", u.FileName)
		d.answer(ctx, sessionID, conv.id, prompt, fileErrorReply)
	}
	return nil
}

func (d *ChatDispatcher) save(ctx context.Context, msg *types.ChatMessage) {
	if err := d.store.SaveChatMessage(ctx, msg); err != nil {
		log.Printf("[%s] Failed to save chat message: conversation=%s err=%v", d.hub.Channel(), msg.ConversationID, err)
	}
}

// departed drops the session's partial upload and conversation binding
func (d *ChatDispatcher) departed(ev hub.Departed) {
	d.limiter.Forget(ev.SessionID)
	d.uploads.Forget(ev.SessionID)

	d.mu.Lock()
	delete(d.conversations, ev.SessionID)
	d.mu.Unlock()
}

func newChatMessage(conversationID, sender string, c types.ChatContent) *types.ChatMessage {
	return &types.ChatMessage{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Sender:         sender,
		Content:        c.Content,
		FromUser:       c.FromUser,
		FileURL:        c.FileURL,
		FileName:       c.FileName,
		MimeType:       c.MimeType,
		Timestamp:      time.Now().UTC(),
	}
}

func senderName(conv conversation) string {
	if conv.username != "" {
		return conv.username
	}
	return conv.id
}
