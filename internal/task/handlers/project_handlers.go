package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codecommand/codecommand/internal/task/dto"
	"github.com/codecommand/codecommand/internal/task/service"
)

type httpCreateProjectRequest struct {
	Name        string  `json:"name"`
	GitRepoPath string  `json:"git_repo_path"`
	SetupScript *string `json:"setup_script,omitempty"`
	DevScript   *string `json:"dev_script,omitempty"`
}

type httpUpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	SetupScript *string `json:"setup_script,omitempty"`
	DevScript   *string `json:"dev_script,omitempty"`
}

func (h *Handlers) listProjects(c *gin.Context) {
	projects, err := h.service.ListProjects(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "projects not found")
		return
	}
	c.JSON(http.StatusOK, dto.ListProjectsResponse{
		Projects: dto.FromProjects(projects),
		Total:    len(projects),
	})
}

func (h *Handlers) createProject(c *gin.Context) {
	var body httpCreateProjectRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	project, err := h.service.CreateProject(c.Request.Context(), &service.CreateProjectRequest{
		Name:        body.Name,
		GitRepoPath: body.GitRepoPath,
		SetupScript: body.SetupScript,
		DevScript:   body.DevScript,
	})
	if err != nil {
		respondError(c, h.logger, err, "project not found")
		return
	}
	c.JSON(http.StatusCreated, dto.FromProject(project))
}

func (h *Handlers) getProject(c *gin.Context) {
	project, err := h.service.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "project not found")
		return
	}
	c.JSON(http.StatusOK, dto.FromProject(project))
}

func (h *Handlers) updateProject(c *gin.Context) {
	var body httpUpdateProjectRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	project, err := h.service.UpdateProject(c.Request.Context(), c.Param("id"), &service.UpdateProjectRequest{
		Name:        body.Name,
		SetupScript: body.SetupScript,
		DevScript:   body.DevScript,
	})
	if err != nil {
		respondError(c, h.logger, err, "project not found")
		return
	}
	c.JSON(http.StatusOK, dto.FromProject(project))
}

func (h *Handlers) deleteProject(c *gin.Context) {
	if err := h.service.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err, "project not found")
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}
