// Package agent defines the capability the scheduler hands each task to:
// an opaque asynchronous call that does the actual work inside a workspace
// and streams progress back. The scheduler has no opinion about what runs
// behind the interface.
package agent

import (
	"context"
	"fmt"
	"strings"

	"agentq/internal/config"
	logx "agentq/pkg/logx"
)

// Result is the executor's verdict for one invocation.
type Result struct {
	Success bool
	Output  string
	Error   string
}

// StreamFunc receives progress chunks while the executor runs. It may be
// called from any goroutine and must be safe to call repeatedly.
type StreamFunc func(chunk string)

// Executor runs one task inside a workspace directory.
//
// Contract: it must tolerate empty and very large prompts, and it must
// never panic out of Execute; every failure comes back through Result or
// the error return. Cancellation of ctx bounds the call.
type Executor interface {
	Kind() string
	Execute(ctx context.Context, workspacePath, prompt string, onStream StreamFunc) (Result, error)
}

// New builds the executor selected by cfg.Kind.
func New(cfg config.AgentConfig, log logx.Logger) (Executor, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "exec":
		return NewExec(cfg.Exec, log)
	case "http":
		return NewHTTP(cfg.HTTP, log)
	case "static":
		return NewStatic(cfg.Static), nil
	default:
		return nil, fmt.Errorf("agent: unknown kind %q", cfg.Kind)
	}
}
