package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codecommand/codecommand/internal/analytics"
	"github.com/codecommand/codecommand/internal/common/logger"
	"github.com/codecommand/codecommand/internal/events"
	"github.com/codecommand/codecommand/internal/events/bus"
	"github.com/codecommand/codecommand/internal/execution"
	"github.com/codecommand/codecommand/internal/executor"
	"github.com/codecommand/codecommand/internal/task/models"
	"github.com/codecommand/codecommand/internal/task/repository"
	"github.com/codecommand/codecommand/internal/tracing"
	"github.com/codecommand/codecommand/internal/worktree"
)

// Service coordinates attempt creation, follow-ups, and stops. Spawns are
// the only writers of Running execution rows; terminal states are written
// by the monitor, except for Killed which Stop writes synchronously.
type Service struct {
	repo      repository.Repository
	registry  *execution.Registry
	worktrees *worktree.Manager
	factory   *executor.Factory
	eventBus  bus.EventBus
	analytics *analytics.Service
	logger    *logger.Logger
}

// NewService creates the attempt service.
func NewService(
	repo repository.Repository,
	registry *execution.Registry,
	worktrees *worktree.Manager,
	factory *executor.Factory,
	eventBus bus.EventBus,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		repo:      repo,
		registry:  registry,
		worktrees: worktrees,
		factory:   factory,
		eventBus:  eventBus,
		logger:    log.WithFields(zap.String("component", "attempt-service")),
	}
}

// SetAnalytics wires the optional analytics tracker.
func (s *Service) SetAnalytics(tracker *analytics.Service) {
	s.analytics = tracker
}

// CreateRequest carries the inputs for starting a new attempt.
type CreateRequest struct {
	TaskID     string
	Executor   models.ExecutorKind
	BaseBranch string
}

// Create provisions a worktree and branch for the task, persists the
// attempt, and starts its first stage: the project's setup script when one
// is defined, otherwise the coding agent itself.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.TaskAttempt, error) {
	task, err := s.repo.GetTask(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	project, err := s.repo.GetProject(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}

	// Reject an unknown executor before any resources are provisioned.
	if _, err := s.factory.NewExecutor(req.Executor); err != nil {
		return nil, NewValidationError("%v", err)
	}

	wt, err := s.worktrees.Create(ctx, worktree.CreateRequest{
		RepositoryPath: project.GitRepoPath,
		TaskID:         task.ID,
		TaskTitle:      task.Title,
		BaseBranch:     req.BaseBranch,
	})
	if err != nil {
		if errors.Is(err, worktree.ErrRepoNotGit) || errors.Is(err, worktree.ErrInvalidBaseBranch) {
			return nil, NewValidationError("%v", err)
		}
		return nil, fmt.Errorf("failed to create worktree: %w", err)
	}

	attempt := &models.TaskAttempt{
		ID:           uuid.New().String(),
		TaskID:       task.ID,
		Branch:       wt.Branch,
		WorktreePath: wt.Path,
		Executor:     req.Executor,
	}
	if err := s.repo.CreateTaskAttempt(ctx, attempt); err != nil {
		if removeErr := s.worktrees.Remove(ctx, project.GitRepoPath, wt.Path, wt.Branch); removeErr != nil {
			s.logger.Warn("failed to remove worktree after persist failure",
				zap.String("path", wt.Path),
				zap.Error(removeErr))
		}
		return nil, fmt.Errorf("failed to persist attempt: %w", err)
	}

	s.appendActivity(ctx, attempt.ID, models.ActivityAttemptCreated, map[string]any{
		"task_id":  task.ID,
		"executor": string(attempt.Executor),
		"branch":   attempt.Branch,
	})
	s.publishAttemptEvent(ctx, attempt.ID, events.AttemptCreated, map[string]any{
		"attempt_id":    attempt.ID,
		"task_id":       task.ID,
		"executor":      string(attempt.Executor),
		"branch":        attempt.Branch,
		"worktree_path": attempt.WorktreePath,
	})

	s.markTaskInProgress(ctx, task)

	if _, err := s.startFirstStage(ctx, attempt, task, project); err != nil {
		s.appendActivity(ctx, attempt.ID, models.ActivityAttemptFailed, map[string]any{
			"reason": err.Error(),
		})
		return nil, err
	}

	return attempt, nil
}

// startFirstStage spawns the setup script when the project defines one,
// otherwise the coding agent.
func (s *Service) startFirstStage(ctx context.Context, attempt *models.TaskAttempt, task *models.Task, project *models.Project) (*models.ExecutionProcess, error) {
	if project.HasSetupScript() {
		return s.startProcess(ctx, processSpawn{
			attempt: attempt,
			task:    task,
			kind:    models.ProcessKindSetupScript,
			exec:    executor.NewSetupScriptExecutor(*project.SetupScript),
		})
	}
	return s.startCodingAgent(ctx, attempt, task)
}

// startCodingAgent spawns the attempt's executor with the initial task prompt.
func (s *Service) startCodingAgent(ctx context.Context, attempt *models.TaskAttempt, task *models.Task) (*models.ExecutionProcess, error) {
	exec, err := s.factory.NewExecutor(attempt.Executor)
	if err != nil {
		return nil, NewValidationError("%v", err)
	}
	prompt := executor.TaskPrompt(task)
	return s.startProcess(ctx, processSpawn{
		attempt: attempt,
		task:    task,
		kind:    models.ProcessKindCodingAgent,
		exec:    exec,
		prompt:  &prompt,
	})
}

// FollowUp resumes the attempt's captured agent session with a new prompt.
func (s *Service) FollowUp(ctx context.Context, attemptID, prompt string) (*models.ExecutionProcess, error) {
	attempt, err := s.repo.GetTaskAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	attemptUUID, err := uuid.Parse(attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("malformed attempt id %q: %w", attempt.ID, err)
	}
	if s.registry.HasRunningForAttempt(attemptUUID) {
		return nil, NewConflictError("attempt %s already has a running execution", attempt.ID)
	}

	if prompt == "" {
		return nil, NewValidationError("follow-up prompt is required")
	}

	sessionID, err := s.repo.GetSessionIDForAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	if sessionID == nil {
		return nil, NewValidationError("attempt %s has no captured session to resume", attempt.ID)
	}

	task, err := s.repo.GetTask(ctx, attempt.TaskID)
	if err != nil {
		return nil, err
	}

	exec, err := s.factory.NewFollowupExecutor(attempt.Executor, *sessionID, prompt)
	if err != nil {
		return nil, NewValidationError("%v", err)
	}

	s.appendActivity(ctx, attempt.ID, models.ActivityFollowUpStarted, map[string]any{
		"session_id": *sessionID,
	})

	return s.startProcess(ctx, processSpawn{
		attempt: attempt,
		task:    task,
		kind:    models.ProcessKindCodingAgent,
		exec:    exec,
		prompt:  &prompt,
	})
}

// Stop terminates the attempt's most recent running execution with the
// escalating signal sequence and marks its row Killed. The child's entry
// leaves the registry here, so the terminal write happens synchronously
// rather than through the monitor.
func (s *Service) Stop(ctx context.Context, attemptID string) error {
	attempt, err := s.repo.GetTaskAttempt(ctx, attemptID)
	if err != nil {
		return err
	}

	process, err := s.repo.GetLatestRunningProcessForAttempt(ctx, attempt.ID)
	if err != nil {
		return NewValidationError("attempt %s has no running execution", attempt.ID)
	}

	execUUID, err := uuid.Parse(process.ID)
	if err != nil {
		return fmt.Errorf("malformed execution id %q: %w", process.ID, err)
	}

	_, span := tracing.TraceStop(ctx, attempt.ID, process.ID)
	defer span.End()

	// Snapshot output before the child is torn down; the registry entry is
	// removed by Stop so the monitor will never observe this execution.
	var stdout, stderr = process.Stdout, process.Stderr
	for _, snap := range s.registry.SnapshotOutputs() {
		if snap.ExecutionID == execUUID {
			stdout, stderr = snap.Stdout, snap.Stderr
			break
		}
	}

	if stopped := s.registry.Stop(execUUID); !stopped {
		s.logger.Warn("no live child for running execution, marking killed",
			zap.String("execution_id", process.ID),
			zap.String("attempt_id", attempt.ID))
	}

	if err := s.repo.CompleteExecutionProcess(ctx, process.ID, models.ProcessStatusKilled, nil, stdout, stderr); err != nil {
		return fmt.Errorf("failed to mark execution killed: %w", err)
	}

	s.appendActivity(ctx, attempt.ID, models.ActivityProcessKilled, map[string]any{
		"execution_process_id": process.ID,
		"kind":                 string(process.Kind),
	})
	s.publishAttemptEvent(ctx, attempt.ID, events.ProcessKilled, map[string]any{
		"attempt_id":           attempt.ID,
		"execution_process_id": process.ID,
		"kind":                 string(process.Kind),
	})

	s.logger.Info("stopped execution",
		zap.String("attempt_id", attempt.ID),
		zap.String("execution_id", process.ID),
		zap.String("kind", string(process.Kind)))

	return nil
}

// RecoverOrphans reclassifies Running rows left over from a previous run as
// Failed. Called once at startup before the monitor begins its cycles.
func (s *Service) RecoverOrphans(ctx context.Context) (int64, error) {
	recovered, err := s.repo.RecoverOrphanedProcesses(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to recover orphaned executions: %w", err)
	}
	if recovered > 0 {
		s.logger.Warn("marked orphaned executions failed", zap.Int64("count", recovered))
	}
	return recovered, nil
}

// processSpawn bundles everything startProcess needs for one stage.
type processSpawn struct {
	attempt *models.TaskAttempt
	task    *models.Task
	kind    models.ExecutionProcessKind
	exec    executor.Executor
	// prompt is stored on the executor session row; nil for script stages,
	// which have no session.
	prompt *string
}

// startProcess persists a Running execution row, spawns the child, and
// registers it. On spawn failure the nascent row is marked Failed and the
// spawn error is returned.
//
// The child is started with a context detached from the caller's: an HTTP
// request finishing must not tear down the agent it launched. Stop and
// shutdown paths own termination.
func (s *Service) startProcess(ctx context.Context, req processSpawn) (*models.ExecutionProcess, error) {
	attemptUUID, err := uuid.Parse(req.attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("malformed attempt id %q: %w", req.attempt.ID, err)
	}

	execID := uuid.New()
	process := &models.ExecutionProcess{
		ID:            execID.String(),
		TaskAttemptID: req.attempt.ID,
		Kind:          req.kind,
	}
	if err := s.repo.CreateExecutionProcess(ctx, process); err != nil {
		return nil, fmt.Errorf("failed to persist execution process: %w", err)
	}

	spawnCtx, span := tracing.TraceSpawn(ctx, req.attempt.ID, process.ID, string(req.kind))
	defer span.End()

	child, err := req.exec.Spawn(context.WithoutCancel(spawnCtx), req.task, req.attempt.WorktreePath)
	if err != nil {
		tracing.TraceSpawnResult(span, 0, err)
		if markErr := s.repo.CompleteExecutionProcess(ctx, process.ID, models.ProcessStatusFailed, nil, "", err.Error()); markErr != nil {
			s.logger.Error("failed to mark unspawned execution failed",
				zap.String("execution_id", process.ID),
				zap.Error(markErr))
		}
		return nil, err
	}
	tracing.TraceSpawnResult(span, child.Pid(), nil)

	s.registry.Insert(execID, &execution.RunningExecution{
		TaskAttemptID: attemptUUID,
		Kind:          req.kind,
		Child:         child,
	})

	if req.kind == models.ProcessKindCodingAgent {
		session := &models.ExecutorSession{
			ExecutionProcessID: process.ID,
			TaskAttemptID:      req.attempt.ID,
			Prompt:             req.prompt,
		}
		if err := s.repo.CreateExecutorSession(ctx, session); err != nil {
			// The child stays alive for the monitor; only the session row
			// is missing, so follow-ups on this process will not resume.
			return nil, fmt.Errorf("failed to persist executor session: %w", err)
		}
	}

	s.appendActivity(ctx, req.attempt.ID, models.ActivityProcessStarted, map[string]any{
		"execution_process_id": process.ID,
		"kind":                 string(req.kind),
	})
	s.publishAttemptEvent(ctx, req.attempt.ID, events.ProcessStarted, map[string]any{
		"attempt_id":           req.attempt.ID,
		"execution_process_id": process.ID,
		"kind":                 string(req.kind),
	})

	s.logger.Info("started execution",
		zap.String("attempt_id", req.attempt.ID),
		zap.String("execution_id", process.ID),
		zap.String("kind", string(req.kind)),
		zap.Int("pid", child.Pid()))

	return process, nil
}

// markTaskInProgress moves a todo task to in-progress when its first
// attempt starts. Best effort; attempt creation does not fail on it.
func (s *Service) markTaskInProgress(ctx context.Context, task *models.Task) {
	if task.Status != models.TaskStatusTodo {
		return
	}
	task.Status = models.TaskStatusInProgress
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		s.logger.Warn("failed to move task to in-progress",
			zap.String("task_id", task.ID),
			zap.Error(err))
	}
}

// appendActivity records one attempt history row and mirrors it on the bus.
func (s *Service) appendActivity(ctx context.Context, attemptID, kind string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	activity := &models.TaskAttemptActivity{
		TaskAttemptID: attemptID,
		Kind:          kind,
		Payload:       string(data),
	}
	if err := s.repo.CreateTaskAttemptActivity(ctx, activity); err != nil {
		s.logger.Error("failed to record attempt activity",
			zap.String("attempt_id", attemptID),
			zap.String("kind", kind),
			zap.Error(err))
		return
	}

	s.publishAttemptEvent(ctx, attemptID, events.AttemptActivity, map[string]any{
		"attempt_id": attemptID,
		"kind":       kind,
		"payload":    payload,
	})
}

// publishAttemptEvent publishes one attempt event; failures are logged,
// never propagated.
func (s *Service) publishAttemptEvent(ctx context.Context, attemptID, eventType string, data map[string]any) {
	if s.eventBus == nil {
		return
	}
	event := bus.NewEvent(eventType, "attempt-service", data)
	if err := s.eventBus.Publish(ctx, events.AttemptSubject(attemptID, eventType), event); err != nil {
		s.logger.Error("failed to publish attempt event",
			zap.String("attempt_id", attemptID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// trackEvent forwards to analytics when wired.
func (s *Service) trackEvent(ctx context.Context, name string, props map[string]any) {
	if s.analytics == nil {
		return
	}
	s.analytics.TrackEvent(ctx, name, props)
}
