package tasklog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"
)

// DefaultPollInterval matches the latency the log viewers were built around.
const DefaultPollInterval = 100 * time.Millisecond

// Tailer follows one log file by byte offset. Each Poll stats the file,
// reads only the newly appended range, and returns the complete lines in
// it; a trailing partial line is carried until the writer finishes it.
//
// The file may not exist yet; that polls as "nothing new".
type Tailer struct {
	path   string
	offset int64
	rem    []byte
}

// NewTailer starts following path from the given byte offset.
func NewTailer(path string, offset int64) *Tailer {
	return &Tailer{path: path, offset: offset}
}

// Offset returns the number of bytes consumed so far.
func (t *Tailer) Offset() int64 { return t.offset }

// Poll returns the complete lines appended since the last call.
func (t *Tailer) Poll() ([]string, error) {
	fi, err := os.Stat(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size <= t.offset {
		return nil, nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, size-t.offset)
	if _, err := f.ReadAt(buf, t.offset); err != nil && err != io.EOF {
		return nil, err
	}
	t.offset = size

	t.rem = append(t.rem, buf...)
	var lines []string
	for {
		i := bytes.IndexByte(t.rem, '\n')
		if i < 0 {
			break
		}
		line := string(t.rem[:i])
		t.rem = t.rem[i+1:]
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// Subscribe replays every existing complete line and then tails the file.
//
// The returned replay slice and the live channel meet with no gap and no
// duplicate: the tail starts at the byte offset right after the last
// replayed line. The channel closes when ctx ends.
func (s *Store) Subscribe(ctx context.Context, uuid string, interval time.Duration) ([]string, <-chan string, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	path := s.Path(uuid)

	var replay []string
	var offset int64
	b, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, err
	}
	if err == nil {
		// Replay only complete lines; a partially written last line belongs
		// to the live tail.
		end := len(b)
		for end > 0 && b[end-1] != '\n' {
			end--
		}
		replay = splitLines(b[:end])
		offset = int64(end)
	}

	live := make(chan string, 64)
	go func() {
		defer close(live)
		t := NewTailer(path, offset)
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				lines, err := t.Poll()
				if err != nil {
					continue
				}
				for _, line := range lines {
					select {
					case live <- line:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return replay, live, nil
}
