// Package memory persists the per-task free-text summary the agent carries
// across executions. One opaque blob per task UUID, overwritten wholesale on
// each update: the agent is responsible for folding prior memory into its
// new summary (and compressing it when it grows too large).
package memory

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(uuid string) string {
	return filepath.Join(s.dir, uuid+".md")
}

// Save writes the full blob for a task, replacing any previous content.
func (s *Store) Save(uuid, content string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path(uuid), []byte(content), 0o644)
}

// Load returns the blob and whether it exists. A missing blob is not an
// error: first executions start with empty memory.
func (s *Store) Load(uuid string) (string, bool, error) {
	b, err := os.ReadFile(s.path(uuid))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func (s *Store) Exists(uuid string) bool {
	_, err := os.Stat(s.path(uuid))
	return err == nil
}

// Delete removes a task's memory. Reports whether a blob existed.
func (s *Store) Delete(uuid string) (bool, error) {
	err := os.Remove(s.path(uuid))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns the UUIDs of all tasks that have memory.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".md") {
			out = append(out, strings.TrimSuffix(name, ".md"))
		}
	}
	return out, nil
}
