package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the whole user mapping in one JSON document. Writes are
// serialized by a mutex and go through a temp-file rename so a crash mid-save
// never leaves a truncated snapshot behind.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore builds a store around the given snapshot path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the snapshot. An absent file is an empty state; a malformed file
// yields an empty mapping and the parse error for the caller to log.
func (s *FileStore) Load() (map[string]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make(map[string]*User)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return users, nil
		}
		return users, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &users); err != nil {
		return make(map[string]*User), fmt.Errorf("parse snapshot: %w", err)
	}
	if users == nil {
		users = make(map[string]*User)
	}
	return users, nil
}

// Save rewrites the whole snapshot atomically.
func (s *FileStore) Save(users map[string]*User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
