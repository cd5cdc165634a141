package interfaces

import (
	"context"
	"io"

	"edujam/pkg/types"
)

// Identity is the verified owner of a token
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// AuthVerifier resolves a bearer token to an identity
// ARCHITECTURAL DISCOVERY: Token verification sits behind an interface so the
// channels only ever see a resolved identity or an error
type AuthVerifier interface {
	Verify(token string) (Identity, error)
}

// AIResponder turns a prompt into a reply. Implementations may be slow;
// callers invoke it on the requesting session's own goroutine.
type AIResponder interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// BlobStore keeps uploaded attachments
type BlobStore interface {
	Store(ctx context.Context, data []byte, meta types.FileMetadata) (string, error)
	URL(fileID string) string
	Delete(ctx context.Context, fileID string) error
}

// BlobReader serves stored attachments back to HTTP clients
type BlobReader interface {
	Open(fileID string) (io.ReadCloser, types.FileMetadata, error)
	Metadata(fileID string) (types.FileMetadata, error)
}

// ChatStore persists AI tutor conversations
// FUNCTIONAL DISCOVERY: History is read back in insertion order so a
// reconnecting client can replay the conversation as it happened
type ChatStore interface {
	SaveChatMessage(ctx context.Context, message *types.ChatMessage) error
	ChatHistory(ctx context.Context, conversationID string) ([]*types.ChatMessage, error)
	HealthCheck(ctx context.Context) error
}
