package app

import (
	"context"
	"sync/atomic"

	"agentq/internal/agent"
)

// switchExecutor lets the daemon swap the agent backend at runtime without
// rebuilding the scheduler. An in-flight execution keeps the executor it
// started with.
type switchExecutor struct {
	v atomic.Value // agent.Executor
}

func (s *switchExecutor) swap(e agent.Executor) { s.v.Store(&e) }

func (s *switchExecutor) current() agent.Executor {
	p, _ := s.v.Load().(*agent.Executor)
	if p == nil {
		return nil
	}
	return *p
}

func (s *switchExecutor) Kind() string {
	e := s.current()
	if e == nil {
		return ""
	}
	return e.Kind()
}

func (s *switchExecutor) Execute(ctx context.Context, workspacePath, prompt string, onStream agent.StreamFunc) (agent.Result, error) {
	e := s.current()
	if e == nil {
		return agent.Result{Success: false, Error: "no agent configured"}, nil
	}
	return e.Execute(ctx, workspacePath, prompt, onStream)
}
