// Package scheduler is the pipeline's orchestrator: it decides when tasks
// run, guarantees at most one execution at a time, repairs state after a
// crash, and drives each claimed task through workspace, memory, agent and
// log updates.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"agentq/internal/agent"
	"agentq/internal/eventbus"
	"agentq/internal/memory"
	"agentq/internal/store"
	"agentq/internal/tasklog"
	"agentq/internal/trigger"
	"agentq/internal/workspace"
	logx "agentq/pkg/logx"
)

type Config struct {
	// Heartbeat is the unconditional claim-cycle interval.
	Heartbeat time.Duration
	// TriggerPoll is how often the trigger marker is checked; it gives
	// user-initiated actions sub-heartbeat latency without tight-polling
	// the task table.
	TriggerPoll time.Duration
	// AgentTimeout bounds one agent invocation. It is deliberately generous
	// and independent of whatever internal step limits the agent has.
	AgentTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Heartbeat <= 0 {
		c.Heartbeat = 60 * time.Second
	}
	if c.TriggerPoll <= 0 {
		c.TriggerPoll = time.Second
	}
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = 15 * time.Minute
	}
	return c
}

// Deps are the collaborators one scheduler drives. All required except Bus.
type Deps struct {
	Store    *store.Store
	Layout   *workspace.Layout
	Memory   *memory.Store
	Logs     *tasklog.Store
	Trigger  *trigger.Signal
	Executor agent.Executor
	Bus      eventbus.Bus
	Log      logx.Logger
}

type Service struct {
	deps Deps

	// mu guards lifecycle only (c, running). A running cycle must never
	// need it: Stop and Apply wait for in-flight cron jobs to drain, and
	// a job that needed mu to finish would deadlock against that wait.
	mu      sync.Mutex
	c       *cron.Cron
	running bool

	// cfgMu guards the fields cycles read mid-flight.
	cfgMu   sync.Mutex
	cfg     Config
	baseCtx context.Context

	// inFlight is the single-flight guard: at most one claim-and-execute
	// cycle at a time, no matter which wake source fired.
	inFlight atomic.Bool
}

func New(cfg Config, deps Deps) *Service {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	return &Service{cfg: cfg.withDefaults(), deps: deps}
}

// Start performs crash recovery, arms the heartbeat and trigger-poll timers,
// and runs one immediate cycle. Calling Start while running is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	// A previous process may have died mid-execution, leaving a row stuck
	// in processing. At most one task can have been active and re-offering
	// it is always safe, so repair bluntly.
	n, err := s.deps.Store.ResetProcessingToPending(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.deps.Log.Warn("recovered stuck tasks", logx.Int64("count", n))
	}

	s.cfgMu.Lock()
	s.baseCtx = ctx
	cfg := s.cfg
	s.cfgMu.Unlock()

	c, err := s.armTimers(cfg)
	if err != nil {
		return err
	}
	s.c = c
	s.c.Start()
	s.running = true

	s.deps.Log.Info("scheduler started",
		logx.Duration("heartbeat", cfg.Heartbeat),
		logx.Duration("trigger_poll", cfg.TriggerPoll),
		logx.String("agent", s.deps.Executor.Kind()))

	// Pick up anything already due.
	go s.Kick()
	return nil
}

func (s *Service) armTimers(cfg Config) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc("@every "+cfg.Heartbeat.String(), s.heartbeatJob); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc("@every "+cfg.TriggerPoll.String(), s.triggerJob); err != nil {
		return nil, err
	}
	return c, nil
}

// Stop cancels both timers. An in-flight cycle is allowed to finish.
// Calling Stop twice is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c := s.c
	s.c = nil
	s.running = false
	s.mu.Unlock()

	// Drain outside the lock so the in-flight cycle we are waiting on can
	// still reach the scheduler (config reads, Running, another Apply).
	<-c.Stop().Done()
	s.deps.Log.Info("scheduler stopped")
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Apply updates timing configuration. A heartbeat or poll change re-arms
// the timers; an in-flight cycle is unaffected.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	s.cfgMu.Lock()
	rearm := cfg.Heartbeat != s.cfg.Heartbeat || cfg.TriggerPoll != s.cfg.TriggerPoll
	s.cfg = cfg
	s.cfgMu.Unlock()
	if !rearm {
		return nil
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	// Arm the replacement before touching the old timers: an AddFunc error
	// leaves the current timers running instead of a half-stopped scheduler.
	c, err := s.armTimers(cfg)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	old := s.c
	s.c = c
	c.Start()
	s.mu.Unlock()

	// Both crons tick during the drain window; Kick's single-flight guard
	// makes the overlap harmless. Drained outside the lock for the same
	// reason as Stop.
	<-old.Stop().Done()
	s.deps.Log.Info("scheduler timers re-armed",
		logx.Duration("heartbeat", cfg.Heartbeat),
		logx.Duration("trigger_poll", cfg.TriggerPoll))
	return nil
}

func (s *Service) heartbeatJob() {
	s.Kick()
}

func (s *Service) triggerJob() {
	consumed, err := s.deps.Trigger.Consume()
	if err != nil {
		s.deps.Log.Warn("trigger check failed", logx.Err(err))
		return
	}
	if consumed {
		s.Kick()
	}
}

// Kick attempts one claim-and-execute cycle. If a cycle is already in
// flight the attempt is a no-op (not queued, not retried; the next wake
// source naturally retries). Reports whether a cycle ran.
func (s *Service) Kick() bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer s.inFlight.Store(false)

	ctx := s.ctx()
	defer func() {
		// A panicking cycle degrades to "this cycle did nothing"; the
		// process keeps heartbeating.
		if r := recover(); r != nil {
			s.deps.Log.Error("claim cycle panicked", logx.Any("panic", r))
		}
	}()
	s.runCycle(ctx)
	return true
}

func (s *Service) ctx() context.Context {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}
