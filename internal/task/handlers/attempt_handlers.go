package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codecommand/codecommand/internal/attempt"
	"github.com/codecommand/codecommand/internal/task/dto"
	"github.com/codecommand/codecommand/internal/task/models"
)

type httpCreateAttemptRequest struct {
	Executor   string `json:"executor,omitempty"`
	BaseBranch string `json:"base_branch,omitempty"`
}

type httpFollowUpRequest struct {
	Prompt string `json:"prompt"`
}

func (h *Handlers) createAttempt(c *gin.Context) {
	var body httpCreateAttemptRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	// an attempt that names no executor runs the configured default
	executor := body.Executor
	if executor == "" {
		executor = h.service.GetSettings().DefaultExecutor
	}

	created, err := h.attempts.Create(c.Request.Context(), attempt.CreateRequest{
		TaskID:     c.Param("id"),
		Executor:   models.ExecutorKind(executor),
		BaseBranch: body.BaseBranch,
	})
	if err != nil {
		respondError(c, h.logger, err, "task not found")
		return
	}
	c.JSON(http.StatusCreated, dto.FromAttempt(created))
}

func (h *Handlers) listAttempts(c *gin.Context) {
	attempts, err := h.service.ListAttempts(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "task not found")
		return
	}
	c.JSON(http.StatusOK, dto.ListAttemptsResponse{
		Attempts: dto.FromAttempts(attempts),
		Total:    len(attempts),
	})
}

func (h *Handlers) getAttempt(c *gin.Context) {
	got, err := h.service.GetAttempt(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "attempt not found")
		return
	}
	c.JSON(http.StatusOK, dto.FromAttempt(got))
}

func (h *Handlers) followUp(c *gin.Context) {
	var body httpFollowUpRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	process, err := h.attempts.FollowUp(c.Request.Context(), c.Param("id"), body.Prompt)
	if err != nil {
		respondError(c, h.logger, err, "attempt not found")
		return
	}
	c.JSON(http.StatusCreated, dto.FromProcess(process))
}

func (h *Handlers) stopAttempt(c *gin.Context) {
	if err := h.attempts.Stop(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err, "attempt not found")
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}

func (h *Handlers) attemptDiff(c *gin.Context) {
	diff, err := h.service.Diff(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "attempt not found")
		return
	}
	c.JSON(http.StatusOK, dto.DiffResponse{Diff: diff})
}

func (h *Handlers) listActivities(c *gin.Context) {
	activities, err := h.service.ListActivities(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "attempt not found")
		return
	}
	c.JSON(http.StatusOK, dto.ListActivitiesResponse{
		Activities: dto.FromActivities(activities),
		Total:      len(activities),
	})
}

func (h *Handlers) listProcesses(c *gin.Context) {
	processes, err := h.service.ListProcesses(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "attempt not found")
		return
	}
	c.JSON(http.StatusOK, dto.ListProcessesResponse{
		Processes: dto.FromProcesses(processes),
		Total:     len(processes),
	})
}

func (h *Handlers) getProcess(c *gin.Context) {
	process, err := h.service.GetProcess(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "execution process not found")
		return
	}
	c.JSON(http.StatusOK, dto.FromProcess(process))
}

func (h *Handlers) normalizedLogs(c *gin.Context) {
	conversation, err := h.service.GetNormalizedLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "execution process not found")
		return
	}
	c.JSON(http.StatusOK, conversation)
}
