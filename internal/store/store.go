package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yikzhou/voicebridge/backend/internal/model/transcript"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSessionID = errors.New("invalid session id")
)

// FileStore persists one transcript per session id as a flat JSON array on
// disk. Every operation is a full read-modify-write of the backing file;
// concurrent writers on the same id race and the last writer wins. That is the
// contract for single-user demo use, so there is no cross-process locking.
type FileStore struct {
	dir string
}

// NewFileStore creates the base directory if needed and returns a store
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Create mints a new session id and writes an empty transcript for it.
func (s *FileStore) Create(_ context.Context) (string, error) {
	sessionID := uuid.NewString()
	if err := s.write(sessionID, []transcript.Message{}); err != nil {
		return "", err
	}
	return sessionID, nil
}

// Append adds a message to an existing transcript. The session must already
// exist; appending never creates a file.
func (s *FileStore) Append(ctx context.Context, sessionID string, msg transcript.Message) error {
	messages, err := s.Read(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.write(sessionID, append(messages, msg))
}

// Read returns the stored messages in append order.
func (s *FileStore) Read(_ context.Context, sessionID string) ([]transcript.Message, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	var messages []transcript.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", sessionID, err)
	}
	if messages == nil {
		messages = []transcript.Message{}
	}
	return messages, nil
}

// List returns the ids of every session Create has succeeded for, sorted for
// stable output.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// End marks a session finished. The store keeps the file around (demo
// persistence, no deletion exposed), so this only verifies the id exists.
func (s *FileStore) End(ctx context.Context, sessionID string) error {
	_, err := s.Read(ctx, sessionID)
	return err
}

func (s *FileStore) write(sessionID string, messages []transcript.Message) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript %s: %w", sessionID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// path rejects ids that could escape the base directory before touching disk.
func (s *FileStore) path(sessionID string) (string, error) {
	if !ValidSessionID(sessionID) {
		return "", ErrInvalidSessionID
	}
	return filepath.Join(s.dir, sessionID+".json"), nil
}

// ValidSessionID reports whether id is a non-empty path-safe token.
func ValidSessionID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
