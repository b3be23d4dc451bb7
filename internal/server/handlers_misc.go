package server

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"agentq/internal/store"
	"agentq/internal/workspace"
	logx "agentq/pkg/logx"
)

func (s *Server) handleListWorkspaces(c *gin.Context) {
	uuids, err := s.deps.Layout.List()
	if err != nil {
		s.deps.Log.Error("workspace list failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if uuids == nil {
		uuids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": uuids})
}

func (s *Server) handleDeleteWorkspace(c *gin.Context) {
	uuid := c.Param("uuid")
	deleted, err := s.deps.Layout.Delete(uuid)
	if err != nil {
		s.deps.Log.Error("workspace delete failed", logx.String("uuid", uuid), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleListWorkspaceFiles(c *gin.Context) {
	uuid := c.Param("uuid")
	files, ok, err := s.deps.Layout.ListFiles(uuid)
	if err != nil {
		s.deps.Log.Error("workspace file list failed", logx.String("uuid", uuid), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
		return
	}
	if files == nil {
		files = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"uuid": uuid, "files": files})
}

func (s *Server) handleDownloadWorkspaceFile(c *gin.Context) {
	uuid, name := c.Param("uuid"), c.Param("file")
	path, err := s.deps.Layout.FilePath(uuid, name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.FileAttachment(path, name)
}

func (s *Server) handleDeleteWorkspaceFile(c *gin.Context) {
	uuid, name := c.Param("uuid"), c.Param("file")
	deleted, err := s.deps.Layout.RemoveFile(uuid, name)
	if errors.Is(err, workspace.ErrInvalidFileName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}
	if err != nil {
		s.deps.Log.Error("workspace file delete failed",
			logx.String("uuid", uuid), logx.String("file", name), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "file deleted"})
}

type taskStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

func (s *Server) handleServerStatus(c *gin.Context) {
	tasks, err := s.deps.Store.All(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats := taskStats{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case store.StatusPending:
			stats.Pending++
		case store.StatusProcessing:
			stats.Processing++
		case store.StatusCompleted:
			stats.Completed++
		case store.StatusFailed:
			stats.Failed++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"running": true,
		"stats":   stats,
		"config":  s.deps.Runtime.Snapshot(),
	})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Runtime.Snapshot())
}

type patchConfigRequest struct {
	Heartbeat *int64  `json:"heartbeat"`
	Agent     *string `json:"agent"`
}

func (s *Server) handlePatchConfig(c *gin.Context) {
	var req patchConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Heartbeat == nil && req.Agent == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}
	if req.Heartbeat != nil {
		if err := s.deps.Runtime.SetHeartbeat(*req.Heartbeat); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Agent != nil {
		if err := s.deps.Runtime.SetAgentKind(*req.Agent); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, s.deps.Runtime.Snapshot())
}
