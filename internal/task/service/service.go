// Package service implements the project, task, and settings operations
// behind the REST and MCP surfaces. Attempt lifecycle operations live in
// internal/attempt; this package covers everything that does not spawn or
// signal processes.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/codecommand/codecommand/internal/analytics"
	"github.com/codecommand/codecommand/internal/common/config"
	"github.com/codecommand/codecommand/internal/common/logger"
	"github.com/codecommand/codecommand/internal/task/models"
	"github.com/codecommand/codecommand/internal/task/repository"
	"github.com/codecommand/codecommand/internal/worktree"
)

// Service exposes project and task CRUD, attempt read surfaces, and
// settings management.
type Service struct {
	repo      repository.Repository
	worktrees *worktree.Manager
	analytics *analytics.Service
	settings  *settingsState
	logger    *logger.Logger
}

// NewService creates the task service.
func NewService(repo repository.Repository, worktrees *worktree.Manager, cfg *config.Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		repo:      repo,
		worktrees: worktrees,
		settings:  newSettingsState(cfg),
		logger:    log.WithFields(zap.String("component", "task-service")),
	}
}

// SetAnalytics wires the analytics tracker so settings updates can
// reconfigure it.
func (s *Service) SetAnalytics(tracker *analytics.Service) {
	s.analytics = tracker
}

// Project operations

// CreateProjectRequest carries the inputs for registering a project.
type CreateProjectRequest struct {
	Name        string
	GitRepoPath string
	SetupScript *string
	DevScript   *string
}

// UpdateProjectRequest carries a partial project update. Nil fields are
// left unchanged; pointers to empty strings clear the scripts.
type UpdateProjectRequest struct {
	Name        *string
	SetupScript *string
	DevScript   *string
}

// CreateProject validates and registers a project. The git_repo_path must
// point at an existing git repository.
func (s *Service) CreateProject(ctx context.Context, req *CreateProjectRequest) (*models.Project, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("validation: project name is required")
	}
	if req.GitRepoPath == "" {
		return nil, fmt.Errorf("validation: git_repo_path is required")
	}
	repoPath, err := filepath.Abs(req.GitRepoPath)
	if err != nil {
		return nil, fmt.Errorf("validation: invalid git_repo_path: %v", err)
	}
	if info, err := os.Stat(filepath.Join(repoPath, ".git")); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("validation: %s is not a git repository", repoPath)
	}

	project := &models.Project{
		Name:        req.Name,
		GitRepoPath: repoPath,
		SetupScript: req.SetupScript,
		DevScript:   req.DevScript,
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		s.logger.Error("failed to create project", zap.Error(err))
		return nil, err
	}

	s.logger.Info("project created",
		zap.String("project_id", project.ID),
		zap.String("name", project.Name),
		zap.String("repo", project.GitRepoPath))
	return project, nil
}

// GetProject returns one project by id.
func (s *Service) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return s.repo.GetProject(ctx, id)
}

// ListProjects returns all projects, newest first.
func (s *Service) ListProjects(ctx context.Context) ([]*models.Project, error) {
	return s.repo.ListProjects(ctx)
}

// UpdateProject applies a partial update to a project.
func (s *Service) UpdateProject(ctx context.Context, id string, req *UpdateProjectRequest) (*models.Project, error) {
	project, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, fmt.Errorf("validation: project name is required")
		}
		project.Name = *req.Name
	}
	if req.SetupScript != nil {
		project.SetupScript = nilIfEmpty(*req.SetupScript)
	}
	if req.DevScript != nil {
		project.DevScript = nilIfEmpty(*req.DevScript)
	}

	if err := s.repo.UpdateProject(ctx, project); err != nil {
		s.logger.Error("failed to update project", zap.String("project_id", id), zap.Error(err))
		return nil, err
	}

	s.logger.Info("project updated", zap.String("project_id", id))
	return project, nil
}

// DeleteProject removes a project and cascades to its tasks, attempts,
// and execution history.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if _, err := s.repo.GetProject(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteProject(ctx, id); err != nil {
		s.logger.Error("failed to delete project", zap.String("project_id", id), zap.Error(err))
		return err
	}
	s.logger.Info("project deleted", zap.String("project_id", id))
	return nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
