// Package tasklog stores the per-task execution logs: one append-only file
// per task UUID, timestamped lines, never truncated except by explicit
// deletion.
//
// Live tailing is file-offset polling on purpose: the writer and a reader
// may be different OS processes sharing only the filesystem, so the
// in-process event bus is an additive convenience, never the sole delivery
// mechanism.
package tasklog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agentq/internal/eventbus"
)

type Store struct {
	dir string
	bus eventbus.Bus // optional; nil disables in-process fanout

	mu sync.Mutex
}

func NewStore(dir string, bus eventbus.Bus) *Store {
	return &Store{dir: dir, bus: bus}
}

// Path returns the log file for a task UUID.
func (s *Store) Path(uuid string) string {
	return filepath.Join(s.dir, uuid+".log")
}

// Append writes one timestamped line and broadcasts it to in-process
// subscribers. Safe for concurrent use: agent stream callbacks may fire from
// whatever goroutine the executor uses.
func (s *Store) Append(uuid, message string) error {
	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), message)

	s.mu.Lock()
	err := s.appendLocked(uuid, line)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeLogLine,
			Data: eventbus.LogLine{UUID: uuid, Message: strings.TrimRight(line, "\n")},
		})
	}
	return nil
}

func (s *Store) appendLocked(uuid, line string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.Path(uuid), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}

// Appendf is Append with formatting.
func (s *Store) Appendf(uuid, format string, args ...any) error {
	return s.Append(uuid, fmt.Sprintf(format, args...))
}

// Read returns every complete, non-blank line. A missing file reads as an
// empty log.
func (s *Store) Read(uuid string) ([]string, error) {
	b, err := os.ReadFile(s.Path(uuid))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return splitLines(b), nil
}

// Delete removes a task's log file. Reports whether one existed.
func (s *Store) Delete(uuid string) (bool, error) {
	err := os.Remove(s.Path(uuid))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func splitLines(b []byte) []string {
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
