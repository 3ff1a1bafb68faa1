// Package state persists the watcher's durable state: the delta resume
// checkpoint and the processed-item dedup index. Both use write-to-temp then
// atomic-rename so a reader never observes a torn file.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const checkpointFileName = "checkpoint.txt"

// FileCheckpointStore stores a single opaque resume token in a file.
// Last writer wins; the system assumes a single watcher per folder.
type FileCheckpointStore struct {
	path string
}

// NewFileCheckpointStore creates a checkpoint store rooted at stateDir.
func NewFileCheckpointStore(stateDir string) *FileCheckpointStore {
	return &FileCheckpointStore{
		path: filepath.Join(stateDir, checkpointFileName),
	}
}

// Read returns the stored token. ok is false when no checkpoint exists.
func (s *FileCheckpointStore) Read() (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read checkpoint: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", false, nil
	}
	return token, true, nil
}

// Write replaces the stored token atomically (temp file + rename).
func (s *FileCheckpointStore) Write(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp := s.path + ".part"
	if err := os.WriteFile(tmp, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write checkpoint temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
