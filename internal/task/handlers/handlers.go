// Package handlers wires the REST surface: project and task CRUD, attempt
// lifecycle operations, execution history reads, and settings.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codecommand/codecommand/internal/attempt"
	"github.com/codecommand/codecommand/internal/common/logger"
	"github.com/codecommand/codecommand/internal/task/service"
)

// Handlers carries the services behind the REST surface.
type Handlers struct {
	service  *service.Service
	attempts *attempt.Service
	logger   *logger.Logger
}

// NewHandlers creates the REST handlers.
func NewHandlers(svc *service.Service, attempts *attempt.Service, log *logger.Logger) *Handlers {
	return &Handlers{
		service:  svc,
		attempts: attempts,
		logger:   log.WithFields(zap.String("component", "http-handlers")),
	}
}

// RegisterRoutes registers the JSON API under /api/v1 plus the health
// probe. The websocket stream route is registered by the streaming hub.
func RegisterRoutes(router *gin.Engine, svc *service.Service, attempts *attempt.Service, log *logger.Logger) *Handlers {
	h := NewHandlers(svc, attempts, log)

	router.GET("/health", h.health)

	api := router.Group("/api/v1")
	api.GET("/projects", h.listProjects)
	api.POST("/projects", h.createProject)
	api.GET("/projects/:id", h.getProject)
	api.PATCH("/projects/:id", h.updateProject)
	api.DELETE("/projects/:id", h.deleteProject)
	api.GET("/projects/:id/tasks", h.listTasks)
	api.POST("/projects/:id/tasks", h.createTask)

	api.GET("/tasks/:id", h.getTask)
	api.PATCH("/tasks/:id", h.updateTask)
	api.DELETE("/tasks/:id", h.deleteTask)
	api.GET("/tasks/:id/attempts", h.listAttempts)
	api.POST("/tasks/:id/attempts", h.createAttempt)

	api.GET("/attempts/:id", h.getAttempt)
	api.POST("/attempts/:id/follow-up", h.followUp)
	api.POST("/attempts/:id/stop", h.stopAttempt)
	api.GET("/attempts/:id/diff", h.attemptDiff)
	api.GET("/attempts/:id/activities", h.listActivities)
	api.GET("/attempts/:id/processes", h.listProcesses)

	api.GET("/execution-processes/:id", h.getProcess)
	api.GET("/execution-processes/:id/normalized-logs", h.normalizedLogs)

	api.GET("/config", h.getSettings)
	api.PUT("/config", h.updateSettings)

	return h
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
