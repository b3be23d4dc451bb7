package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"agentq/internal/eventbus"
	"agentq/internal/tasklog"
	logx "agentq/pkg/logx"
)

func (s *Server) handleGetMemory(c *gin.Context) {
	uuid := c.Param("uuid")
	content, ok, err := s.deps.Memory.Load(uuid)
	if err != nil {
		s.deps.Log.Error("memory load failed", logx.String("uuid", uuid), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no memory for task"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uuid": uuid, "memory": content})
}

type putMemoryRequest struct {
	Memory string `json:"memory" binding:"required"`
}

func (s *Server) handlePutMemory(c *gin.Context) {
	uuid := c.Param("uuid")
	var req putMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Memory.Save(uuid, req.Memory); err != nil {
		s.deps.Log.Error("memory save failed", logx.String("uuid", uuid), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleGetLogs(c *gin.Context) {
	uuid := c.Param("uuid")
	lines, err := s.deps.Logs.Read(uuid)
	if err != nil {
		s.deps.Log.Error("log read failed", logx.String("uuid", uuid), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if lines == nil {
		lines = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"uuid": uuid, "logs": lines})
}

func sseHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
}

func sseSend(c *gin.Context, flusher http.Flusher, event string, payload any) bool {
	b, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

// handleStreamLogs replays the full log for a task and then follows the
// file, so a watcher attaches at any point without gaps. The follow reads
// the file by offset rather than the in-process bus: it works even when the
// writer is another process.
func (s *Server) handleStreamLogs(c *gin.Context) {
	uuid := c.Param("uuid")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}
	sseHeaders(c)

	ctx := c.Request.Context()
	replay, live, err := s.deps.Logs.Subscribe(ctx, uuid, tasklog.DefaultPollInterval)
	if err != nil {
		s.deps.Log.Error("log subscribe failed", logx.String("uuid", uuid), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	for _, line := range replay {
		if !sseSend(c, flusher, "log", gin.H{"uuid": uuid, "message": line}) {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-live:
			if !ok {
				return
			}
			if !sseSend(c, flusher, "log", gin.H{"uuid": uuid, "message": line}) {
				return
			}
		}
	}
}

// handleEvents streams bus events (task updates, queue drain) to UI clients.
func (s *Server) handleEvents(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}
	sseHeaders(c)

	ch, unsubscribe := s.deps.Bus.Subscribe(64)
	defer unsubscribe()

	if !sseSend(c, flusher, "connected", gin.H{"status": "connected"}) {
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type == eventbus.TypeLogLine {
				// Per-task log streams have their own endpoint.
				continue
			}
			if !sseSend(c, flusher, ev.Type, ev.Data) {
				return
			}
		}
	}
}
