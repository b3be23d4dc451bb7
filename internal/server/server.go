// Package server exposes the pipeline over HTTP: task CRUD and control,
// memory access, log replay and live SSE streams. Transport only — every
// semantic lives in the stores and the scheduler, and the server talks to
// the scheduler exclusively through the durable trigger signal so the two
// could run as separate processes.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"agentq/internal/config"
	"agentq/internal/eventbus"
	"agentq/internal/memory"
	"agentq/internal/store"
	"agentq/internal/tasklog"
	"agentq/internal/trigger"
	"agentq/internal/workspace"
	logx "agentq/pkg/logx"
)

// RuntimeConfig is the narrow mutation surface for operator-settable knobs.
// Implemented by the daemon wiring; the server never touches ambient state.
type RuntimeConfig interface {
	Snapshot() ConfigView
	SetHeartbeat(ms int64) error
	SetAgentKind(kind string) error
}

// ConfigView is what GET /api/config reports.
type ConfigView struct {
	HeartbeatMS int64  `json:"heartbeat"`
	AgentKind   string `json:"agent"`
}

type Deps struct {
	Store   *store.Store
	Memory  *memory.Store
	Layout  *workspace.Layout
	Logs    *tasklog.Store
	Trigger *trigger.Signal
	Bus     eventbus.Bus
	Runtime RuntimeConfig
	Log     logx.Logger
}

type Server struct {
	cfg  config.APIConfig
	deps Deps
	http *http.Server
}

func New(cfg config.APIConfig, deps Deps) *Server {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	s := &Server{cfg: cfg, deps: deps}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLog(deps.Log))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type"},
	}))
	r.Use(rateLimit(cfg.RatePerSec, cfg.Burst))

	api := r.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.GET("/tasks/search", s.handleSearchTasks)
		api.GET("/tasks/uuid-map", s.handleUUIDMap)
		api.GET("/tasks/:id", s.handleGetTask)
		api.PATCH("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
		api.PATCH("/tasks/:id/due-time", s.handleDueTime)
		api.POST("/tasks/:id/force", s.handleForce)
		api.POST("/tasks/:id/restart", s.handleRestart)
		api.POST("/tasks/:id/cancel", s.handleCancel)

		api.GET("/memory/:uuid", s.handleGetMemory)
		api.PUT("/memory/:uuid", s.handlePutMemory)

		api.GET("/logs/:uuid", s.handleGetLogs)
		api.GET("/logs/:uuid/stream", s.handleStreamLogs)

		api.GET("/events", s.handleEvents)

		api.GET("/workspaces", s.handleListWorkspaces)
		api.DELETE("/workspaces/:uuid", s.handleDeleteWorkspace)
		api.GET("/workspaces/:uuid/files", s.handleListWorkspaceFiles)
		api.GET("/workspaces/:uuid/download/:file", s.handleDownloadWorkspaceFile)
		api.DELETE("/workspaces/:uuid/files/:file", s.handleDeleteWorkspaceFile)

		api.GET("/server/status", s.handleServerStatus)

		api.GET("/config", s.handleGetConfig)
		api.PATCH("/config", s.handlePatchConfig)
	}

	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.deps.Log.Info("api listening", logx.String("addr", s.cfg.Listen))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutCtx)
		return <-errCh
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
