// Package repository defines the storage contract for the orchestrator's
// persistent entities.
package repository

import (
	"context"

	"github.com/codecommand/codecommand/internal/task/models"
)

// Repository is the storage interface the services are written against.
type Repository interface {
	// Project operations
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	UpdateProject(ctx context.Context, project *models.Project) error
	DeleteProject(ctx context.Context, id string) error
	ListProjects(ctx context.Context) ([]*models.Project, error)

	// Task operations
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, projectID, query string) ([]*models.Task, error)

	// Task attempt operations
	CreateTaskAttempt(ctx context.Context, attempt *models.TaskAttempt) error
	GetTaskAttempt(ctx context.Context, id string) (*models.TaskAttempt, error)
	ListTaskAttempts(ctx context.Context, taskID string) ([]*models.TaskAttempt, error)

	// Execution process operations
	CreateExecutionProcess(ctx context.Context, process *models.ExecutionProcess) error
	GetExecutionProcess(ctx context.Context, id string) (*models.ExecutionProcess, error)
	ListExecutionProcesses(ctx context.Context, attemptID string) ([]*models.ExecutionProcess, error)
	GetLatestRunningProcessForAttempt(ctx context.Context, attemptID string) (*models.ExecutionProcess, error)
	UpdateExecutionProcessOutput(ctx context.Context, id, stdout, stderr string) error
	CompleteExecutionProcess(ctx context.Context, id string, status models.ExecutionProcessStatus, exitCode *int64, stdout, stderr string) error
	RecoverOrphanedProcesses(ctx context.Context) (int64, error)

	// Executor session operations
	CreateExecutorSession(ctx context.Context, session *models.ExecutorSession) error
	GetExecutorSessionByProcessID(ctx context.Context, processID string) (*models.ExecutorSession, error)
	UpdateExecutorSessionID(ctx context.Context, processID, sessionID string) error
	UpdateExecutorSessionSummary(ctx context.Context, processID, summary string) error
	GetSessionIDForAttempt(ctx context.Context, attemptID string) (*string, error)

	// Attempt activity operations
	CreateTaskAttemptActivity(ctx context.Context, activity *models.TaskAttemptActivity) error
	ListTaskAttemptActivities(ctx context.Context, attemptID string) ([]*models.TaskAttemptActivity, error)

	Close() error
}
