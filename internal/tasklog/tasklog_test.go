package tasklog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agentq/internal/eventbus"
)

func TestAppendRead(t *testing.T) {
	t.Parallel()
	s := NewStore(filepath.Join(t.TempDir(), "logs"), nil)

	lines, err := s.Read("missing")
	if err != nil {
		t.Fatalf("Read missing: %v", err)
	}
	if lines != nil {
		t.Fatalf("missing log should read empty, got %v", lines)
	}

	if err := s.Append("t1", "Task started: demo"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Appendf("t1", "Loaded memory (%d characters)", 42); err != nil {
		t.Fatalf("Appendf: %v", err)
	}

	lines, err = s.Read("t1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.HasSuffix(lines[0], "Task started: demo") {
		t.Fatalf("line 0 = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "Loaded memory (42 characters)") {
		t.Fatalf("line 1 = %q", lines[1])
	}
	// Lines carry a leading timestamp.
	if !strings.HasPrefix(lines[0], "[") {
		t.Fatalf("line 0 missing timestamp: %q", lines[0])
	}
}

func TestAppendPublishesLogLine(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	s := NewStore(filepath.Join(t.TempDir(), "logs"), bus)
	if err := s.Append("t1", "hello"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Type != eventbus.TypeLogLine {
			t.Fatalf("event type = %s", ev.Type)
		}
		ll, ok := ev.Data.(eventbus.LogLine)
		if !ok {
			t.Fatalf("event data = %T", ev.Data)
		}
		if ll.UUID != "t1" || !strings.HasSuffix(ll.Message, "hello") {
			t.Fatalf("payload = %+v", ll)
		}
	case <-time.After(time.Second):
		t.Fatal("no log-line event published")
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s := NewStore(filepath.Join(t.TempDir(), "logs"), nil)

	if ok, err := s.Delete("t1"); err != nil || ok {
		t.Fatalf("Delete missing: ok=%v err=%v", ok, err)
	}
	if err := s.Append("t1", "x"); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.Delete("t1"); err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	lines, err := s.Read("t1")
	if err != nil || lines != nil {
		t.Fatalf("log should be gone, got %v err=%v", lines, err)
	}
}

func TestTailerPollByOffset(t *testing.T) {
	t.Parallel()
	s := NewStore(filepath.Join(t.TempDir(), "logs"), nil)
	tailer := NewTailer(s.Path("t1"), 0)

	// File does not exist yet.
	lines, err := tailer.Poll()
	if err != nil || lines != nil {
		t.Fatalf("poll before file: %v %v", lines, err)
	}

	if err := s.Append("t1", "one"); err != nil {
		t.Fatal(err)
	}
	if err := s.Append("t1", "two"); err != nil {
		t.Fatal(err)
	}
	lines, err = tailer.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	// Nothing new.
	lines, err = tailer.Poll()
	if err != nil || lines != nil {
		t.Fatalf("second poll: %v %v", lines, err)
	}

	if err := s.Append("t1", "three"); err != nil {
		t.Fatal(err)
	}
	lines, err = tailer.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(lines) != 1 || !strings.HasSuffix(lines[0], "three") {
		t.Fatalf("got %v", lines)
	}
}

// The replay and the live tail must meet with no gap and no duplicate.
func TestSubscribeSeam(t *testing.T) {
	t.Parallel()
	s := NewStore(filepath.Join(t.TempDir(), "logs"), nil)

	const before, after = 5, 3
	for i := 0; i < before; i++ {
		if err := s.Appendf("t1", "pre %d", i); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replay, live, err := s.Subscribe(ctx, "t1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if len(replay) != before {
		t.Fatalf("replayed %d lines, want %d", len(replay), before)
	}

	for i := 0; i < after; i++ {
		if err := s.Appendf("t1", "post %d", i); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	deadline := time.After(5 * time.Second)
	for len(got) < after {
		select {
		case line := <-live:
			got = append(got, line)
		case <-deadline:
			t.Fatalf("timed out, tailed %d of %d lines", len(got), after)
		}
	}

	all := append(append([]string{}, replay...), got...)
	if len(all) != before+after {
		t.Fatalf("total %d lines, want %d", len(all), before+after)
	}
	for i := 0; i < before; i++ {
		if !strings.HasSuffix(all[i], "pre "+string(rune('0'+i))) {
			t.Fatalf("line %d = %q", i, all[i])
		}
	}
	for i := 0; i < after; i++ {
		if !strings.HasSuffix(all[before+i], "post "+string(rune('0'+i))) {
			t.Fatalf("line %d = %q", before+i, all[before+i])
		}
	}

	// No extra lines trickle in after the writer stops.
	select {
	case line := <-live:
		t.Fatalf("unexpected extra line %q", line)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeChannelClosesOnCancel(t *testing.T) {
	t.Parallel()
	s := NewStore(filepath.Join(t.TempDir(), "logs"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, live, err := s.Subscribe(ctx, "t1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()

	select {
	case _, ok := <-live:
		if ok {
			t.Fatal("expected closed channel, got a line")
		}
	case <-time.After(time.Second):
		t.Fatal("channel did not close after cancel")
	}
}
