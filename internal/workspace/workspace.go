// Package workspace owns the on-disk data directory layout:
//
//	<data>/queue.db            task table
//	<data>/workspaces/<uuid>/  per-task working directory
//	<data>/memory/<uuid>.md    per-task memory blob
//	<data>/logs/<uuid>.log     per-task append-only log
//	<data>/.trigger            scheduler wake-up marker
//
// Workspaces are keyed by task UUID and survive across recurrences of the
// same task. They are deleted only by explicit operator action.
package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

type Layout struct {
	root string
}

func NewLayout(dataDir string) (*Layout, error) {
	root := strings.TrimSpace(dataDir)
	if root == "" {
		return nil, errors.New("workspace: data dir is required")
	}
	return &Layout{root: root}, nil
}

func (l *Layout) Root() string        { return l.root }
func (l *Layout) DBPath() string      { return filepath.Join(l.root, "queue.db") }
func (l *Layout) MemoryDir() string   { return filepath.Join(l.root, "memory") }
func (l *Layout) LogsDir() string     { return filepath.Join(l.root, "logs") }
func (l *Layout) TriggerPath() string { return filepath.Join(l.root, ".trigger") }

func (l *Layout) WorkspacesDir() string { return filepath.Join(l.root, "workspaces") }

// Path returns the workspace directory for a task UUID without creating it.
func (l *Layout) Path(uuid string) string {
	return filepath.Join(l.WorkspacesDir(), uuid)
}

// EnsureDirs creates the data directory skeleton.
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{l.root, l.MemoryDir(), l.LogsDir(), l.WorkspacesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Create makes the workspace directory for a task (idempotent) and returns
// its path.
func (l *Layout) Create(uuid string) (string, error) {
	if err := l.EnsureDirs(); err != nil {
		return "", err
	}
	p := l.Path(uuid)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", err
	}
	return p, nil
}

func (l *Layout) Exists(uuid string) bool {
	_, err := os.Stat(l.Path(uuid))
	return err == nil
}

// List returns the UUIDs of all existing workspaces.
func (l *Layout) List() ([]string, error) {
	entries, err := os.ReadDir(l.WorkspacesDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// ErrInvalidFileName rejects file names that could escape a workspace.
var ErrInvalidFileName = errors.New("workspace: invalid file name")

// FilePath resolves a file name inside a workspace. The name must be a
// bare name: anything with a path separator or a dot-dot component is
// rejected so callers can pass request input straight through.
func (l *Layout) FilePath(uuid, name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidFileName
	}
	return filepath.Join(l.Path(uuid), name), nil
}

// ListFiles returns the non-hidden entry names in a workspace. The second
// return reports whether the workspace exists.
func (l *Layout) ListFiles(uuid string) ([]string, bool, error) {
	entries, err := os.ReadDir(l.Path(uuid))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out, true, nil
}

// RemoveFile deletes one file from a workspace. It reports whether the
// file existed.
func (l *Layout) RemoveFile(uuid, name string) (bool, error) {
	p, err := l.FilePath(uuid, name)
	if err != nil {
		return false, err
	}
	if err := os.Remove(p); errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a workspace recursively. It reports whether one existed.
func (l *Layout) Delete(uuid string) (bool, error) {
	p := l.Path(uuid)
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(p); err != nil {
		return false, err
	}
	return true, nil
}
