package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/codecommand/codecommand/internal/task/models"
)

// CreateTaskRequest carries the inputs for creating a task. Status is
// optional and defaults to todo; it accepts the tolerant spellings
// (in_progress, inreview, completed, canceled, ...).
type CreateTaskRequest struct {
	ProjectID   string
	Title       string
	Description *string
	Status      string
}

// UpdateTaskRequest carries a partial task update.
type UpdateTaskRequest struct {
	Title       *string
	Description *string
	Status      *string
}

// CreateTask creates a task under an existing project.
func (s *Service) CreateTask(ctx context.Context, req *CreateTaskRequest) (*models.Task, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("validation: task title is required")
	}
	if _, err := s.repo.GetProject(ctx, req.ProjectID); err != nil {
		return nil, err
	}

	status := models.TaskStatusTodo
	if req.Status != "" {
		parsed, err := models.ParseTaskStatus(req.Status)
		if err != nil {
			return nil, fmt.Errorf("validation: %v", err)
		}
		status = parsed
	}

	task := &models.Task{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		s.logger.Error("failed to create task", zap.Error(err))
		return nil, err
	}

	s.logger.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("project_id", task.ProjectID),
		zap.String("title", task.Title))
	return task, nil
}

// GetTask returns one task by id.
func (s *Service) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return s.repo.GetTask(ctx, id)
}

// ListTasks returns the tasks of a project, newest first. A non-empty
// query narrows the list to tasks whose title or description matches.
func (s *Service) ListTasks(ctx context.Context, projectID, query string) ([]*models.Task, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListTasks(ctx, projectID, query)
}

// UpdateTask applies a partial update, parsing the status tolerantly.
func (s *Service) UpdateTask(ctx context.Context, id string, req *UpdateTaskRequest) (*models.Task, error) {
	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		if *req.Title == "" {
			return nil, fmt.Errorf("validation: task title is required")
		}
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = nilIfEmpty(*req.Description)
	}
	if req.Status != nil {
		parsed, err := models.ParseTaskStatus(*req.Status)
		if err != nil {
			return nil, fmt.Errorf("validation: %v", err)
		}
		task.Status = parsed
	}

	if err := s.repo.UpdateTask(ctx, task); err != nil {
		s.logger.Error("failed to update task", zap.String("task_id", id), zap.Error(err))
		return nil, err
	}

	s.logger.Info("task updated", zap.String("task_id", id), zap.String("status", string(task.Status)))
	return task, nil
}

// DeleteTask removes a task and its attempt history.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.repo.GetTask(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteTask(ctx, id); err != nil {
		s.logger.Error("failed to delete task", zap.String("task_id", id), zap.Error(err))
		return err
	}
	s.logger.Info("task deleted", zap.String("task_id", id))
	return nil
}
