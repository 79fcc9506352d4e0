package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parley-chat/parley/internal/chat"
)

// FileStore persists each session as a JSON file under a root directory.
// Session keys are opaque, so file names use the URL-safe base64 encoding
// of the key.
type FileStore struct {
	root string
}

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{root: dir}, nil
}

func (s *FileStore) path(key string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(key))
	return filepath.Join(s.root, name+".json")
}

// Get retrieves the session stored under key, or ErrNotFound.
func (s *FileStore) Get(_ context.Context, key string) (*chat.Session, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session %q: %w", key, err)
	}
	var sess chat.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", key, err)
	}
	return &sess, nil
}

// Put stores the full session snapshot under key. The snapshot is written
// to a temporary file and renamed into place so a crash mid-write never
// leaves a torn session on disk.
func (s *FileStore) Put(_ context.Context, key string, sess *chat.Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %q: %w", key, err)
	}
	data = append(data, '\n')

	path := s.path(key)
	tmp, err := os.CreateTemp(s.root, ".put-*")
	if err != nil {
		return fmt.Errorf("write session %q: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write session %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write session %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write session %q: %w", key, err)
	}
	return nil
}

// Delete removes the session stored under key.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete session %q: %w", key, err)
	}
	return nil
}
