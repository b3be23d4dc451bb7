// Package app wires the pipeline together: config, logging, storage,
// workspaces, the agent executor, the scheduler and the HTTP API. It owns
// startup/shutdown order and the runtime-config surface the API mutates.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"agentq/internal/agent"
	"agentq/internal/config"
	"agentq/internal/eventbus"
	"agentq/internal/memory"
	"agentq/internal/scheduler"
	"agentq/internal/server"
	"agentq/internal/store"
	"agentq/internal/tasklog"
	"agentq/internal/trigger"
	"agentq/internal/workspace"
	logx "agentq/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	layout *workspace.Layout
	store  *store.Store
	memory *memory.Store
	tlogs  *tasklog.Store
	trig   *trigger.Signal
	bus    eventbus.Bus

	exec  *switchExecutor
	sched *scheduler.Service
	api   *server.Server

	mu       sync.Mutex
	schedCfg scheduler.Config
	agentCfg config.AgentConfig

	wg       sync.WaitGroup
	stopOnce sync.Once
	fatal    chan error
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		File: logx.FileConfig{
			Enabled: cfg.Log.File.Enabled,
			Path:    cfg.Log.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	layout, err := workspace.NewLayout(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if err := layout.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	st, err := store.Open(store.Config{Path: layout.DBPath()},
		log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	mem := memory.NewStore(layout.MemoryDir())
	tlogs := tasklog.NewStore(layout.LogsDir(), bus)
	trig := trigger.New(layout.TriggerPath())

	exec := &switchExecutor{}
	base, err := agent.New(cfg.Agent, log.With(logx.String("comp", "agent")))
	if err != nil {
		return nil, err
	}
	exec.swap(base)

	schedCfg, err := schedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, scheduler.Deps{
		Store:    st,
		Layout:   layout,
		Memory:   mem,
		Logs:     tlogs,
		Trigger:  trig,
		Executor: exec,
		Bus:      bus,
		Log:      log.With(logx.String("comp", "scheduler")),
	})

	a := &App{
		cfgm:     cfgm,
		logs:     logSvc,
		log:      log,
		layout:   layout,
		store:    st,
		memory:   mem,
		tlogs:    tlogs,
		trig:     trig,
		bus:      bus,
		exec:     exec,
		sched:    sched,
		schedCfg: schedCfg,
		agentCfg: cfg.Agent,
		fatal:    make(chan error, 1),
	}

	if cfg.API.Enabled {
		a.api = server.New(cfg.API, server.Deps{
			Store:   st,
			Memory:  mem,
			Layout:  layout,
			Logs:    tlogs,
			Trigger: trig,
			Bus:     bus,
			Runtime: (*runtimeConfig)(a),
			Log:     log.With(logx.String("comp", "api")),
		})
	}

	return a, nil
}

func schedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	hb, err := cfg.HeartbeatDuration()
	if err != nil {
		return scheduler.Config{}, err
	}
	tp, err := cfg.TriggerPollDuration()
	if err != nil {
		return scheduler.Config{}, err
	}
	at, err := cfg.AgentTimeoutDuration()
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Heartbeat: hb, TriggerPoll: tp, AgentTimeout: at}, nil
}

func (a *App) Start(ctx context.Context) error {
	if err := a.sched.Start(ctx); err != nil {
		return err
	}

	if a.api != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.api.Run(ctx); err != nil {
				a.log.Error("api server exited", logx.Err(err))
				select {
				case a.fatal <- err:
				default:
				}
			}
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	}()

	a.wg.Add(1)
	go a.reloadLoop(ctx)

	// No-op outside systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	a.log.Info("pipeline started")
	return nil
}

// Fatal reports the first unrecoverable background error, if any.
func (a *App) Fatal() <-chan error { return a.fatal }

func (a *App) Stop() {
	a.stopOnce.Do(func() {
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
		a.sched.Stop()
		a.wg.Wait()
		if err := a.store.Close(); err != nil {
			a.log.Warn("store close failed", logx.Err(err))
		}
		a.log.Info("pipeline stopped")
		_ = a.logs.Close()
	})
}

// reloadLoop applies validated config changes picked up by the watcher:
// log sinks, scheduler timers and the agent executor. DataDir and the API
// listen address are boot-time only.
func (a *App) reloadLoop(ctx context.Context) {
	defer a.wg.Done()

	ch := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.applyConfig(cfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		File: logx.FileConfig{
			Enabled: cfg.Log.File.Enabled,
			Path:    cfg.Log.File.Path,
		},
	})

	schedCfg, err := schedulerConfig(cfg)
	if err != nil {
		a.log.Warn("config reload: bad scheduler durations", logx.Err(err))
		return
	}
	if err := a.sched.Apply(schedCfg); err != nil {
		a.log.Warn("config reload: scheduler apply failed", logx.Err(err))
		return
	}

	ex, err := agent.New(cfg.Agent, a.log.With(logx.String("comp", "agent")))
	if err != nil {
		a.log.Warn("config reload: agent rebuild failed", logx.Err(err))
		return
	}
	a.exec.swap(ex)

	a.mu.Lock()
	a.schedCfg = schedCfg
	a.agentCfg = cfg.Agent
	a.mu.Unlock()

	a.log.Info("config reloaded",
		logx.Duration("heartbeat", schedCfg.Heartbeat),
		logx.String("agent", a.exec.Kind()))
}

// runtimeConfig adapts App to the API's mutation surface. Changes made here
// are runtime-only; the config file on disk stays authoritative across
// restarts.
type runtimeConfig App

func (r *runtimeConfig) app() *App { return (*App)(r) }

func (r *runtimeConfig) Snapshot() server.ConfigView {
	a := r.app()
	a.mu.Lock()
	defer a.mu.Unlock()
	return server.ConfigView{
		HeartbeatMS: a.schedCfg.Heartbeat.Milliseconds(),
		AgentKind:   a.exec.Kind(),
	}
}

func (r *runtimeConfig) SetHeartbeat(ms int64) error {
	if ms < 1000 {
		return fmt.Errorf("heartbeat must be at least 1000ms, got %d", ms)
	}
	a := r.app()
	a.mu.Lock()
	cfg := a.schedCfg
	cfg.Heartbeat = time.Duration(ms) * time.Millisecond
	a.mu.Unlock()

	if err := a.sched.Apply(cfg); err != nil {
		return err
	}
	a.mu.Lock()
	a.schedCfg = cfg
	a.mu.Unlock()
	a.log.Info("heartbeat updated", logx.Duration("heartbeat", cfg.Heartbeat))
	return nil
}

func (r *runtimeConfig) SetAgentKind(kind string) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	switch kind {
	case "exec", "http", "static":
	default:
		return fmt.Errorf("unknown agent kind %q", kind)
	}
	a := r.app()
	a.mu.Lock()
	agentCfg := a.agentCfg
	a.mu.Unlock()
	agentCfg.Kind = kind

	ex, err := agent.New(agentCfg, a.log.With(logx.String("comp", "agent")))
	if err != nil {
		return err
	}
	a.exec.swap(ex)

	a.mu.Lock()
	a.agentCfg = agentCfg
	a.mu.Unlock()
	a.log.Info("agent switched", logx.String("kind", kind))
	return nil
}
