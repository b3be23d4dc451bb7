package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"agentq/internal/recurrence"
	"agentq/internal/store"
	logx "agentq/pkg/logx"
)

func (s *Server) taskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return 0, false
	}
	return id, true
}

func (s *Server) respondStoreErr(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	s.deps.Log.Error("store operation failed", logx.Err(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.deps.Store.All(c.Request.Context())
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

type createTaskRequest struct {
	Title              string          `json:"title" binding:"required"`
	Description        string          `json:"description" binding:"required"`
	DueTime            int64           `json:"due_time"`
	RecurrenceType     recurrence.Type `json:"recurrence_type"`
	RecurrenceInterval int64           `json:"recurrence_interval"`
	RecurrenceEndTime  *int64          `json:"recurrence_end_time"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DueTime == 0 {
		// Matches the historical default: due an hour from creation.
		req.DueTime = time.Now().Add(time.Hour).UnixMilli()
	}
	if req.RecurrenceType != "" && !req.RecurrenceType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recurrence_type"})
		return
	}

	task, err := s.deps.Store.Enqueue(c.Request.Context(), store.CreateTaskInput{
		Title:              req.Title,
		Description:        req.Description,
		DueTime:            req.DueTime,
		RecurrenceType:     req.RecurrenceType,
		RecurrenceInterval: req.RecurrenceInterval,
		RecurrenceEndTime:  req.RecurrenceEndTime,
	})
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	s.raiseTrigger()
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := s.taskID(c)
	if !ok {
		return
	}
	task, err := s.deps.Store.GetByID(c.Request.Context(), id)
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type updateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := s.taskID(c)
	if !ok {
		return
	}
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var task *store.Task
	var err error
	if req.Title != "" {
		if task, err = s.deps.Store.UpdateTitle(ctx, id, req.Title); err != nil {
			s.respondStoreErr(c, err)
			return
		}
	}
	if req.Description != "" {
		if task, err = s.deps.Store.UpdateDescription(ctx, id, req.Description); err != nil {
			s.respondStoreErr(c, err)
			return
		}
	}
	if task == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := s.taskID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	task, err := s.deps.Store.GetByID(ctx, id)
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	deleted, err := s.deps.Store.Delete(ctx, id)
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	// Memory cascades best-effort; workspace and logs stay until an
	// operator removes them explicitly.
	if _, err := s.deps.Memory.Delete(task.UUID); err != nil {
		s.deps.Log.Warn("memory cascade delete failed",
			logx.String("uuid", task.UUID), logx.Err(err))
	}
	c.JSON(http.StatusOK, gin.H{"success": deleted})
}

func (s *Server) handleSearchTasks(c *gin.Context) {
	f := store.SearchFilters{
		Status:        store.Status(c.Query("status")),
		TitleContains: c.Query("title_contains"),
	}
	if f.Status != "" && !f.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if v := c.Query("due_before"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_before"})
			return
		}
		f.DueBefore = ms
	}
	if v := c.Query("due_after"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_after"})
			return
		}
		f.DueAfter = ms
	}

	tasks, err := s.deps.Store.Search(c.Request.Context(), f)
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleUUIDMap(c *gin.Context) {
	m, err := s.deps.Store.UUIDTitles(c.Request.Context())
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type dueTimeRequest struct {
	DueTime int64 `json:"due_time" binding:"required"`
}

func (s *Server) handleDueTime(c *gin.Context) {
	id, ok := s.taskID(c)
	if !ok {
		return
	}
	var req dueTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "due_time must be a number"})
		return
	}
	task, err := s.deps.Store.SetDueTime(c.Request.Context(), id, req.DueTime)
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// handleForce makes a task immediately eligible: due now, pending, trigger
// raised.
func (s *Server) handleForce(c *gin.Context) {
	id, ok := s.taskID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.deps.Store.SetDueTime(ctx, id, time.Now().UnixMilli()); err != nil {
		s.respondStoreErr(c, err)
		return
	}
	if _, err := s.deps.Store.SetStatus(ctx, id, store.StatusPending); err != nil {
		s.respondStoreErr(c, err)
		return
	}
	s.raiseTrigger()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "task forced for execution"})
}

// handleRestart is force restricted to finished tasks.
func (s *Server) handleRestart(c *gin.Context) {
	id, ok := s.taskID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	task, err := s.deps.Store.GetByID(ctx, id)
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	if task.Status != store.StatusCompleted && task.Status != store.StatusFailed {
		c.JSON(http.StatusConflict, gin.H{"error": "task is not completed or failed"})
		return
	}
	if _, err := s.deps.Store.SetDueTime(ctx, id, time.Now().UnixMilli()); err != nil {
		s.respondStoreErr(c, err)
		return
	}
	if _, err := s.deps.Store.SetStatus(ctx, id, store.StatusPending); err != nil {
		s.respondStoreErr(c, err)
		return
	}
	s.raiseTrigger()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "task restarted"})
}

// handleCancel flips a processing task back to pending. It does NOT
// interrupt an in-flight agent call; that call's eventual write-back races
// harmlessly against this transition (last write wins, the next heartbeat
// re-claims if still pending). No trigger on purpose.
func (s *Server) handleCancel(c *gin.Context) {
	id, ok := s.taskID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	task, err := s.deps.Store.GetByID(ctx, id)
	if err != nil {
		s.respondStoreErr(c, err)
		return
	}
	if task.Status != store.StatusProcessing {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task is not processing"})
		return
	}
	if _, err := s.deps.Store.SetStatus(ctx, id, store.StatusPending); err != nil {
		s.respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "task cancelled"})
}

func (s *Server) raiseTrigger() {
	if err := s.deps.Trigger.Raise(); err != nil {
		s.deps.Log.Warn("trigger raise failed", logx.Err(err))
	}
}
