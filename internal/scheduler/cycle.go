package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agentq/internal/agent"
	"agentq/internal/eventbus"
	"agentq/internal/prompt"
	"agentq/internal/store"
	logx "agentq/pkg/logx"
)

func (s *Service) buildPrompt(mem, request string) string {
	return prompt.Build(prompt.Input{Memory: mem, UserRequest: request})
}

// runCycle executes at most one task: claim, prepare, invoke, write back.
// Any error ends the cycle without crashing the scheduler; the guard is
// released by the caller in all cases.
func (s *Service) runCycle(ctx context.Context) {
	task, err := s.deps.Store.ClaimNext(ctx)
	if err != nil {
		s.deps.Log.Error("claim failed", logx.Err(err))
		return
	}
	if task == nil {
		s.publish(eventbus.Event{Type: eventbus.TypeQueueEmpty})
		return
	}

	log := s.deps.Log.With(logx.Int64("task_id", task.ID), logx.String("uuid", task.UUID))
	log.Info("task claimed", logx.String("title", task.Title))
	s.publishTask(task)

	uuid := task.UUID
	wsPath, err := s.deps.Layout.Create(uuid)
	if err != nil {
		log.Error("workspace create failed", logx.Err(err))
		s.finishFailed(ctx, task, fmt.Sprintf("workspace create failed: %v", err))
		return
	}

	mem, _, err := s.deps.Memory.Load(uuid)
	if err != nil {
		log.Error("memory load failed", logx.Err(err))
		s.finishFailed(ctx, task, fmt.Sprintf("memory load failed: %v", err))
		return
	}

	built := s.buildPrompt(mem, task.Description)

	s.appendLog(uuid, "Task started: "+task.Title)
	s.appendLog(uuid, "Workspace: "+wsPath)
	if mem != "" {
		s.appendLog(uuid, fmt.Sprintf("Loaded memory (%d characters)", len(mem)))
	}
	s.appendLog(uuid, "Request: "+task.Description)
	s.appendLog(uuid, "Agent: "+s.deps.Executor.Kind())
	s.appendLog(uuid, "Starting agent execution")

	onStream := func(chunk string) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			return
		}
		// Append both writes the file and broadcasts to live subscribers;
		// it is safe from whatever goroutine the executor streams on.
		s.appendLog(uuid, chunk)
	}

	res := s.invoke(ctx, wsPath, built, onStream)

	if !res.Success {
		s.appendLog(uuid, "Task failed: "+orUnknown(res.Error))
		log.Warn("task failed", logx.String("err", orUnknown(res.Error)))
		s.finishFailed(ctx, task, "")
		return
	}

	s.appendLog(uuid, fmt.Sprintf("Agent execution completed, output length %d characters", len(res.Output)))

	// The agent is expected to have written its own memory update as a side
	// effect; fall back to appending the run output so the series never
	// loses its thread.
	if !s.deps.Memory.Exists(uuid) {
		output := res.Output
		if output == "" {
			output = "[No output from agent]"
		}
		if err := s.deps.Memory.Save(uuid, mem+"\n\n"+output); err != nil {
			log.Warn("memory save failed", logx.Err(err))
		}
	}

	completed, err := s.deps.Store.SetStatus(ctx, task.ID, store.StatusCompleted)
	if err != nil {
		log.Error("status update failed", logx.Err(err))
		return
	}
	s.appendLog(uuid, "Task completed")
	log.Info("task completed")
	s.publishTask(completed)

	if completed.Recurring() {
		next, err := s.deps.Store.Reschedule(ctx, completed)
		if err != nil {
			log.Error("reschedule failed", logx.Err(err))
			return
		}
		if next != nil {
			s.appendLog(uuid, "Rescheduled for "+time.UnixMilli(next.DueTime).UTC().Format(time.RFC3339))
			log.Info("task rescheduled", logx.Int64("due_time", next.DueTime))
			s.publishTask(next)
			// Wake the loop so an already-due occurrence is picked up
			// without waiting for the next heartbeat.
			if err := s.deps.Trigger.Raise(); err != nil {
				log.Warn("trigger raise failed", logx.Err(err))
			}
		}
	}
}

// invoke runs the agent capability bounded by AgentTimeout. It always
// resolves: even an executor that ignores cancellation cannot hold the
// single-flight guard past the deadline.
func (s *Service) invoke(ctx context.Context, wsPath, built string, onStream agent.StreamFunc) agent.Result {
	s.cfgMu.Lock()
	timeout := s.cfg.AgentTimeout
	s.cfgMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res agent.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{res: agent.Result{Success: false, Error: fmt.Sprintf("agent panicked: %v", r)}}
			}
		}()
		res, err := s.deps.Executor.Execute(ctx, wsPath, built, onStream)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return agent.Result{Success: false, Error: o.err.Error()}
		}
		return o.res
	case <-ctx.Done():
		return agent.Result{Success: false,
			Error: fmt.Sprintf("agent timed out after %s", timeout)}
	}
}

// finishFailed marks the task failed and emits the update. An extra log
// line is written when reason is non-empty (invoke failures already logged
// their own line).
func (s *Service) finishFailed(ctx context.Context, task *store.Task, reason string) {
	if reason != "" {
		s.appendLog(task.UUID, "Task failed: "+reason)
	}
	failed, err := s.deps.Store.SetStatus(ctx, task.ID, store.StatusFailed)
	if err != nil {
		s.deps.Log.Error("status update failed",
			logx.Int64("task_id", task.ID), logx.Err(err))
		return
	}
	s.publishTask(failed)
}

func (s *Service) appendLog(uuid, message string) {
	if err := s.deps.Logs.Append(uuid, message); err != nil {
		s.deps.Log.Warn("task log append failed",
			logx.String("uuid", uuid), logx.Err(err))
	}
}

func (s *Service) publishTask(t *store.Task) {
	if t != nil {
		s.publish(eventbus.Event{Type: eventbus.TypeTaskUpdate, Data: t})
	}
}

func (s *Service) publish(e eventbus.Event) {
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(e)
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown error"
	}
	return s
}
