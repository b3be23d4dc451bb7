package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"agentq/internal/config"
	logx "agentq/pkg/logx"
)

func TestExecRunsInWorkspace(t *testing.T) {
	t.Parallel()
	ws := t.TempDir()

	// pwd prints the working directory; the prompt arrives as the last
	// argument and is ignored by the shell snippet.
	e, err := NewExec(config.ExecAgentConfig{
		Command: "/bin/sh",
		Args:    []string{"-c", "pwd"},
	}, logx.Nop())
	if err != nil {
		t.Fatalf("NewExec: %v", err)
	}

	var streamed []string
	res, err := e.Execute(context.Background(), ws, "do things", func(chunk string) {
		streamed = append(streamed, chunk)
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Output, ws) {
		t.Fatalf("output %q should contain workspace %q", res.Output, ws)
	}
	if len(streamed) == 0 {
		t.Fatal("no chunks streamed")
	}
}

func TestExecPromptIsLastArg(t *testing.T) {
	t.Parallel()
	e, err := NewExec(config.ExecAgentConfig{
		Command: "/bin/sh",
		Args:    []string{"-c", `printf '%s\n' "$1"`, "sh"},
	}, logx.Nop())
	if err != nil {
		t.Fatalf("NewExec: %v", err)
	}

	res, err := e.Execute(context.Background(), t.TempDir(), "the prompt", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(res.Output) != "the prompt" {
		t.Fatalf("output = %q", res.Output)
	}
}

func TestExecFailureCarriesStderr(t *testing.T) {
	t.Parallel()
	e, err := NewExec(config.ExecAgentConfig{
		Command: "/bin/sh",
		Args:    []string{"-c", "echo broken >&2; exit 3"},
	}, logx.Nop())
	if err != nil {
		t.Fatalf("NewExec: %v", err)
	}

	var streamed []string
	res, err := e.Execute(context.Background(), t.TempDir(), "p", func(chunk string) {
		streamed = append(streamed, chunk)
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "broken") {
		t.Fatalf("error = %q", res.Error)
	}
	found := false
	for _, line := range streamed {
		if strings.HasPrefix(line, "[stderr] ") {
			found = true
		}
	}
	if !found {
		t.Fatalf("stderr chunks not marked: %v", streamed)
	}
}

func TestExecCancellation(t *testing.T) {
	t.Parallel()
	e, err := NewExec(config.ExecAgentConfig{
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 30"},
	}, logx.Nop())
	if err != nil {
		t.Fatalf("NewExec: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := e.Execute(ctx, t.TempDir(), "p", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("cancelled run must not succeed")
	}
	if !strings.Contains(res.Error, "timed out or was cancelled") {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestExecRequiresCommand(t *testing.T) {
	t.Parallel()
	if _, err := NewExec(config.ExecAgentConfig{Command: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestStaticAgent(t *testing.T) {
	t.Parallel()
	s := NewStatic(config.StaticAgentConfig{Output: "done"})
	var chunks []string
	res, err := s.Execute(context.Background(), t.TempDir(), "p", func(c string) { chunks = append(chunks, c) })
	if err != nil || !res.Success || res.Output != "done" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if len(chunks) != 1 || chunks[0] != "done" {
		t.Fatalf("chunks = %v", chunks)
	}

	failing := NewStatic(config.StaticAgentConfig{Fail: true})
	res, err = failing.Execute(context.Background(), t.TempDir(), "p", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success || res.Error == "" {
		t.Fatalf("res = %+v", res)
	}
}

func TestNewSelectsKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind string
		want string
	}{
		{kind: "", want: "exec"},
		{kind: "exec", want: "exec"},
		{kind: "HTTP", want: "http"},
		{kind: "static", want: "static"},
	}
	for _, tt := range tests {
		cfg := config.AgentConfig{
			Kind: tt.kind,
			Exec: config.ExecAgentConfig{Command: "true"},
			HTTP: config.HTTPAgentConfig{Endpoint: "http://localhost:1", Model: "m"},
		}
		e, err := New(cfg, logx.Nop())
		if err != nil {
			t.Fatalf("New(%q): %v", tt.kind, err)
		}
		if e.Kind() != tt.want {
			t.Fatalf("Kind = %s, want %s", e.Kind(), tt.want)
		}
	}

	if _, err := New(config.AgentConfig{Kind: "quantum"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
