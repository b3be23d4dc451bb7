// Package trigger implements the low-latency scheduler wake-up: a sentinel
// file any process can write to request an immediate claim cycle ahead of
// the next heartbeat. Durable and polled by design, so the HTTP layer and
// the scheduler can live in separate processes sharing only the filesystem.
package trigger

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Signal struct {
	path string
}

func New(path string) *Signal {
	return &Signal{path: path}
}

func (s *Signal) Path() string { return s.path }

// Raise writes the marker. Raising an already-raised signal is fine; the
// marker is a level, not a queue.
func (s *Signal) Raise() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(strconv.FormatInt(time.Now().UnixMilli(), 10)), 0o644)
}

// Consume removes the marker and reports whether it was present.
func (s *Signal) Consume() (bool, error) {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Raised reports whether the marker exists without consuming it.
func (s *Signal) Raised() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
