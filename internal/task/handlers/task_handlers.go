package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codecommand/codecommand/internal/task/dto"
	"github.com/codecommand/codecommand/internal/task/service"
)

type httpCreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      string  `json:"status,omitempty"`
}

type httpUpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}

func (h *Handlers) listTasks(c *gin.Context) {
	tasks, err := h.service.ListTasks(c.Request.Context(), c.Param("id"), c.Query("search"))
	if err != nil {
		respondError(c, h.logger, err, "project not found")
		return
	}
	c.JSON(http.StatusOK, dto.ListTasksResponse{
		Tasks: dto.FromTasks(tasks),
		Total: len(tasks),
	})
}

func (h *Handlers) createTask(c *gin.Context) {
	var body httpCreateTaskRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	task, err := h.service.CreateTask(c.Request.Context(), &service.CreateTaskRequest{
		ProjectID:   c.Param("id"),
		Title:       body.Title,
		Description: body.Description,
		Status:      body.Status,
	})
	if err != nil {
		respondError(c, h.logger, err, "project not found")
		return
	}
	c.JSON(http.StatusCreated, dto.FromTask(task))
}

func (h *Handlers) getTask(c *gin.Context) {
	task, err := h.service.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "task not found")
		return
	}
	c.JSON(http.StatusOK, dto.FromTask(task))
}

func (h *Handlers) updateTask(c *gin.Context) {
	var body httpUpdateTaskRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	task, err := h.service.UpdateTask(c.Request.Context(), c.Param("id"), &service.UpdateTaskRequest{
		Title:       body.Title,
		Description: body.Description,
		Status:      body.Status,
	})
	if err != nil {
		respondError(c, h.logger, err, "task not found")
		return
	}
	c.JSON(http.StatusOK, dto.FromTask(task))
}

func (h *Handlers) deleteTask(c *gin.Context) {
	if err := h.service.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err, "task not found")
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}
