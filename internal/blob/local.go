package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"edujam/pkg/interfaces"
	"edujam/pkg/types"
)

const metaSuffix = ".meta.json"

// LocalStore keeps attachments as files in one directory, each with a JSON
// metadata sidecar
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates dir if needed
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Store writes data and returns its file id. meta.FileID is used when it is
// a valid uuid, otherwise a fresh id is allocated.
func (s *LocalStore) Store(ctx context.Context, data []byte, meta types.FileMetadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := uuid.Parse(meta.FileID); err != nil {
		meta.FileID = uuid.New().String()
	}
	meta.Size = int64(len(data))

	if err := os.WriteFile(s.dataPath(meta.FileID), data, 0o644); err != nil {
		return "", fmt.Errorf("write file %s: %w", meta.FileID, err)
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.FileID), encoded, 0o644); err != nil {
		_ = os.Remove(s.dataPath(meta.FileID))
		return "", fmt.Errorf("write metadata %s: %w", meta.FileID, err)
	}

	log.Printf("Stored file: id=%s name=%s size=%d", meta.FileID, meta.FileName, meta.Size)
	return meta.FileID, nil
}

// URL returns the download location served by the REST surface
func (s *LocalStore) URL(fileID string) string {
	return s.baseURL + "/" + fileID
}

// Delete removes a file and its metadata. Deleting a missing file is not an error.
func (s *LocalStore) Delete(ctx context.Context, fileID string) error {
	if !validID(fileID) {
		return interfaces.ErrBlobNotFound
	}
	for _, p := range []string{s.dataPath(fileID), s.metaPath(fileID)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", fileID, err)
		}
	}
	return nil
}

// Open returns a reader over the stored bytes. The caller closes it.
func (s *LocalStore) Open(fileID string) (io.ReadCloser, types.FileMetadata, error) {
	meta, err := s.Metadata(fileID)
	if err != nil {
		return nil, types.FileMetadata{}, err
	}
	f, err := os.Open(s.dataPath(fileID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, types.FileMetadata{}, interfaces.ErrBlobNotFound
		}
		return nil, types.FileMetadata{}, fmt.Errorf("open %s: %w", fileID, err)
	}
	return f, meta, nil
}

// Metadata reads the sidecar of a stored file
func (s *LocalStore) Metadata(fileID string) (types.FileMetadata, error) {
	if !validID(fileID) {
		return types.FileMetadata{}, interfaces.ErrBlobNotFound
	}
	raw, err := os.ReadFile(s.metaPath(fileID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.FileMetadata{}, interfaces.ErrBlobNotFound
		}
		return types.FileMetadata{}, fmt.Errorf("read metadata %s: %w", fileID, err)
	}
	var meta types.FileMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return types.FileMetadata{}, fmt.Errorf("decode metadata %s: %w", fileID, err)
	}
	return meta, nil
}

func (s *LocalStore) dataPath(fileID string) string {
	return filepath.Join(s.dir, fileID)
}

func (s *LocalStore) metaPath(fileID string) string {
	return filepath.Join(s.dir, fileID+metaSuffix)
}

// validID keeps ids from escaping the store directory
func validID(fileID string) bool {
	_, err := uuid.Parse(fileID)
	return err == nil && !strings.ContainsAny(fileID, `/\.`)
}
