package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TriggerRequest is the optional body for POST /api/tasks/:id/trigger.
// TriggerID lets a caller supply its own idempotency key (e.g. an upstream
// webhook delivery id); an empty value gets a generated one, in which case
// the trigger is never deduplicated against a retry.
type TriggerRequest struct {
	TriggerID string `json:"trigger_id"`
}

// triggerTask handles POST /api/tasks/:id/trigger: manually fires a task's
// PlaceholderPipeline run, per spec.md §1's manual-trigger entrypoint.
func (s *Server) triggerTask(c *gin.Context) {
	taskID := c.Param("id")

	var req TriggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.TriggerID == "" {
		req.TriggerID = uuid.New().String()
	}

	task, err := s.Tasks.Get(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	exec, err := s.Pipeline.TriggerManual(c.Request.Context(), task, req.TriggerID)
	if err != nil {
		s.Log.Error("api: trigger task failed", "task_id", taskID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, exec)
}

// cancelExecution handles POST /api/executions/:id/cancel: asserts the
// cancellation signal for a running execution on this process. A 404
// response does not distinguish "no such execution" from "it already
// finished or is running on a different process" — the caller should poll
// GET /api/executions/:id for the authoritative status either way.
func (s *Server) cancelExecution(c *gin.Context) {
	executionID := c.Param("id")

	if !s.Pipeline.Cancel(executionID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no running execution with that id on this process"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancel_requested"})
}

// getExecution handles GET /api/executions/:id.
func (s *Server) getExecution(c *gin.Context) {
	executionID := c.Param("id")

	exec, err := s.Executions.Get(c.Request.Context(), executionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
		return
	}
	c.JSON(http.StatusOK, exec)
}
