package service

import (
	"context"
	"fmt"

	"github.com/codecommand/codecommand/internal/executor"
	"github.com/codecommand/codecommand/internal/task/models"
)

// Attempt read surfaces. Starting, resuming, and stopping attempts is the
// attempt service's job; these only report persisted state.

// GetAttempt returns one attempt by id.
func (s *Service) GetAttempt(ctx context.Context, id string) (*models.TaskAttempt, error) {
	return s.repo.GetTaskAttempt(ctx, id)
}

// ListAttempts returns the attempts of a task, newest first.
func (s *Service) ListAttempts(ctx context.Context, taskID string) ([]*models.TaskAttempt, error) {
	if _, err := s.repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return s.repo.ListTaskAttempts(ctx, taskID)
}

// ListProcesses returns the execution processes of an attempt in start
// order.
func (s *Service) ListProcesses(ctx context.Context, attemptID string) ([]*models.ExecutionProcess, error) {
	if _, err := s.repo.GetTaskAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	return s.repo.ListExecutionProcesses(ctx, attemptID)
}

// GetProcess returns one execution process by id.
func (s *Service) GetProcess(ctx context.Context, id string) (*models.ExecutionProcess, error) {
	return s.repo.GetExecutionProcess(ctx, id)
}

// ListActivities returns the attempt's history rows in insertion order.
func (s *Service) ListActivities(ctx context.Context, attemptID string) ([]*models.TaskAttemptActivity, error) {
	if _, err := s.repo.GetTaskAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	return s.repo.ListTaskAttemptActivities(ctx, attemptID)
}

// GetNormalizedLogs parses an execution's captured stdout into the
// canonical transcript, using the dialect of the executor that produced
// it. Script stages normalize as plain system messages.
func (s *Service) GetNormalizedLogs(ctx context.Context, processID string) (*executor.NormalizedConversation, error) {
	process, err := s.repo.GetExecutionProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	attempt, err := s.repo.GetTaskAttempt(ctx, process.TaskAttemptID)
	if err != nil {
		return nil, err
	}

	exec, err := s.normalizerFor(process, attempt)
	if err != nil {
		return nil, err
	}
	conversation, err := exec.NormalizeLogs(process.Stdout, attempt.WorktreePath)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize logs: %w", err)
	}

	if session, err := s.repo.GetExecutorSessionByProcessID(ctx, process.ID); err == nil {
		conversation.Prompt = session.Prompt
		if conversation.Summary == nil {
			conversation.Summary = session.Summary
		}
	}
	return conversation, nil
}

func (s *Service) normalizerFor(process *models.ExecutionProcess, attempt *models.TaskAttempt) (executor.Executor, error) {
	switch process.Kind {
	case models.ProcessKindSetupScript:
		return executor.NewSetupScriptExecutor(""), nil
	case models.ProcessKindDevServer:
		return executor.NewDevServerExecutor(""), nil
	default:
		return executor.NewExecutor(attempt.Executor)
	}
}

// Diff returns the attempt worktree's uncommitted and committed changes
// against the configured base branch.
func (s *Service) Diff(ctx context.Context, attemptID string) (string, error) {
	attempt, err := s.repo.GetTaskAttempt(ctx, attemptID)
	if err != nil {
		return "", err
	}
	return s.worktrees.Diff(ctx, attempt.WorktreePath, "")
}
