package upload

import (
	"bytes"
	"sync"

	"github.com/google/uuid"
)

// Upload is one in-progress chunked file transfer
type Upload struct {
	FileID    string
	FileName  string
	MimeType  string
	TotalSize int64

	buf bytes.Buffer
}

// Bytes returns the data received so far
func (u *Upload) Bytes() []byte {
	return u.buf.Bytes()
}

// Progress reports the state of an upload after a chunk
type Progress struct {
	FileID          string `json:"fileId"`
	BytesUploaded   int64  `json:"bytesUploaded"`
	TotalSize       int64  `json:"totalSize"`
	PercentComplete int    `json:"percentComplete"`
	Complete        bool   `json:"-"`
}

// Tracker holds at most one active upload per session
type Tracker struct {
	maxSize int64

	mu      sync.Mutex
	uploads map[string]*Upload // sessionID -> upload
}

// NewTracker creates a tracker that rejects declared sizes above maxSize
func NewTracker(maxSize int64) *Tracker {
	return &Tracker{
		maxSize: maxSize,
		uploads: make(map[string]*Upload),
	}
}

// MaxSize returns the largest accepted declared size, 0 for no limit
func (t *Tracker) MaxSize() int64 {
	return t.maxSize
}

// Begin starts an upload for sessionID, replacing any unfinished one
func (t *Tracker) Begin(sessionID, fileName, mimeType string, size int64) (*Upload, error) {
	if size <= 0 || (t.maxSize > 0 && size > t.maxSize) {
		return nil, ErrInvalidSize
	}

	u := &Upload{
		FileID:    uuid.New().String(),
		FileName:  fileName,
		MimeType:  mimeType,
		TotalSize: size,
	}

	t.mu.Lock()
	t.uploads[sessionID] = u
	t.mu.Unlock()
	return u, nil
}

// Append adds a chunk to the session's upload. A chunk that overruns the
// declared size discards the upload.
func (t *Tracker) Append(sessionID string, chunk []byte) (Progress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := t.uploads[sessionID]
	if !ok {
		return Progress{}, ErrNoActiveUpload
	}
	if int64(u.buf.Len()+len(chunk)) > u.TotalSize {
		delete(t.uploads, sessionID)
		return Progress{FileID: u.FileID}, ErrUploadOverflow
	}
	u.buf.Write(chunk)

	uploaded := int64(u.buf.Len())
	return Progress{
		FileID:          u.FileID,
		BytesUploaded:   uploaded,
		TotalSize:       u.TotalSize,
		PercentComplete: int(uploaded * 100 / u.TotalSize),
		Complete:        uploaded == u.TotalSize,
	}, nil
}

// Take removes and returns the upload if fileID matches the session's active one
func (t *Tracker) Take(sessionID, fileID string) (*Upload, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := t.uploads[sessionID]
	if !ok || u.FileID != fileID {
		return nil, ErrUploadNotFound
	}
	delete(t.uploads, sessionID)
	return u, nil
}

// Cancel discards the session's upload if fileID matches
func (t *Tracker) Cancel(sessionID, fileID string) error {
	_, err := t.Take(sessionID, fileID)
	return err
}

// Forget drops whatever the session had in flight
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	delete(t.uploads, sessionID)
	t.mu.Unlock()
}

// Active returns the number of uploads in flight
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.uploads)
}
