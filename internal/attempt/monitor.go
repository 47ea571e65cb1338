package attempt

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/codecommand/codecommand/internal/common/logger"
	"github.com/codecommand/codecommand/internal/events"
	"github.com/codecommand/codecommand/internal/execution"
	"github.com/codecommand/codecommand/internal/executor"
	"github.com/codecommand/codecommand/internal/task/models"
)

// defaultPollInterval is used when no monitor interval is configured.
const defaultPollInterval = time.Second

// Monitor reconciles live children with persisted execution state. Each
// cycle flushes partial output for still-running executions, reaps the
// terminated ones, writes their terminal rows, and advances the attempt
// to its next stage.
type Monitor struct {
	service  *Service
	interval time.Duration
	logger   *logger.Logger
}

// NewMonitor creates a monitor polling at the given interval.
func NewMonitor(service *Service, interval time.Duration, log *logger.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if log == nil {
		log = logger.Default()
	}
	return &Monitor{
		service:  service,
		interval: interval,
		logger:   log.WithFields(zap.String("component", "execution-monitor")),
	}
}

// Run blocks, polling until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("execution monitor started", zap.Duration("interval", m.interval))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("execution monitor stopping")
			return nil
		case <-ticker.C:
			m.cycle(ctx)
		}
	}
}

// cycle performs one monitor pass. A panic in a cycle is contained so a
// single bad execution cannot take the monitor down.
func (m *Monitor) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor cycle panicked",
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	m.flushOutputs(ctx)

	for _, reaped := range m.service.registry.ReapTerminated() {
		m.handleReaped(ctx, reaped)
	}
}

// flushOutputs persists the current output of every still-running child so
// reads and kills observe output at most one poll interval stale.
func (m *Monitor) flushOutputs(ctx context.Context) {
	for _, snap := range m.service.registry.SnapshotOutputs() {
		if err := m.service.repo.UpdateExecutionProcessOutput(ctx, snap.ExecutionID.String(), snap.Stdout, snap.Stderr); err != nil {
			m.logger.Warn("failed to flush execution output",
				zap.String("execution_id", snap.ExecutionID.String()),
				zap.Error(err))
		}
	}
}

// handleReaped writes the terminal row for one collected execution and
// advances the attempt when the stage succeeded.
func (m *Monitor) handleReaped(ctx context.Context, reaped execution.Reaped) {
	attemptID := reaped.TaskAttemptID.String()
	executionID := reaped.ExecutionID.String()

	status := models.ProcessStatusFailed
	activityKind := models.ActivityProcessFailed
	eventType := events.ProcessFailed
	if reaped.Success {
		status = models.ProcessStatusCompleted
		activityKind = models.ActivityProcessCompleted
		eventType = events.ProcessCompleted
	}

	if err := m.service.repo.CompleteExecutionProcess(ctx, executionID, status, reaped.ExitCode, reaped.Stdout, reaped.Stderr); err != nil {
		// The registry entry is already gone, so this execution will not be
		// revisited; the row stays running until startup recovery.
		m.logger.Error("failed to record terminal execution state",
			zap.String("execution_id", executionID),
			zap.String("attempt_id", attemptID),
			zap.Error(err))
		return
	}

	m.logger.Info("execution finished",
		zap.String("attempt_id", attemptID),
		zap.String("execution_id", executionID),
		zap.String("kind", string(reaped.Kind)),
		zap.String("status", string(status)))

	attempt, err := m.service.repo.GetTaskAttempt(ctx, attemptID)
	if err != nil {
		m.logger.Error("failed to load attempt for reaped execution",
			zap.String("attempt_id", attemptID),
			zap.Error(err))
		attempt = nil
	}

	if attempt != nil && reaped.Kind == models.ProcessKindCodingAgent {
		m.captureSession(ctx, attempt, reaped)
	}

	m.service.appendActivity(ctx, attemptID, activityKind, map[string]any{
		"execution_process_id": executionID,
		"kind":                 string(reaped.Kind),
		"exit_code":            reaped.ExitCode,
	})
	m.service.publishAttemptEvent(ctx, attemptID, eventType, map[string]any{
		"attempt_id":           attemptID,
		"execution_process_id": executionID,
		"kind":                 string(reaped.Kind),
		"exit_code":            reaped.ExitCode,
		"success":              reaped.Success,
	})

	analyticsEvent := "execution_failed"
	if reaped.Success {
		analyticsEvent = "execution_completed"
	}
	m.service.trackEvent(ctx, analyticsEvent, map[string]any{
		"kind": string(reaped.Kind),
	})

	if !reaped.Success {
		m.service.appendActivity(ctx, attemptID, models.ActivityAttemptFailed, map[string]any{
			"execution_process_id": executionID,
			"kind":                 string(reaped.Kind),
		})
		return
	}
	if attempt != nil {
		m.advanceStage(ctx, attempt, reaped)
	}
}

// captureSession normalizes the coding agent's stdout and records the
// session id and summary it reported. The stored session id is set once;
// later observations are ignored by the store.
func (m *Monitor) captureSession(ctx context.Context, attempt *models.TaskAttempt, reaped execution.Reaped) {
	exec, err := m.service.factory.NewExecutor(attempt.Executor)
	if err != nil {
		m.logger.Warn("no executor for session capture",
			zap.String("attempt_id", attempt.ID),
			zap.String("executor", string(attempt.Executor)),
			zap.Error(err))
		return
	}

	conversation, err := exec.NormalizeLogs(reaped.Stdout, attempt.WorktreePath)
	if err != nil {
		m.logger.Warn("failed to normalize agent logs",
			zap.String("attempt_id", attempt.ID),
			zap.String("execution_id", reaped.ExecutionID.String()),
			zap.Error(err))
		return
	}

	executionID := reaped.ExecutionID.String()
	if conversation.SessionID != nil {
		if err := m.service.repo.UpdateExecutorSessionID(ctx, executionID, *conversation.SessionID); err != nil {
			m.logger.Warn("failed to record executor session id",
				zap.String("execution_id", executionID),
				zap.Error(err))
		}
	}
	if conversation.Summary != nil {
		if err := m.service.repo.UpdateExecutorSessionSummary(ctx, executionID, *conversation.Summary); err != nil {
			m.logger.Warn("failed to record executor session summary",
				zap.String("execution_id", executionID),
				zap.Error(err))
		}
	}
}

// advanceStage starts the next stage after a successful one: setup script
// hands off to the coding agent, and the coding agent hands off to review
// plus the dev server when the project defines one.
func (m *Monitor) advanceStage(ctx context.Context, attempt *models.TaskAttempt, reaped execution.Reaped) {
	switch reaped.Kind {
	case models.ProcessKindSetupScript:
		task, err := m.service.repo.GetTask(ctx, attempt.TaskID)
		if err != nil {
			m.logger.Error("failed to load task for coding agent stage",
				zap.String("attempt_id", attempt.ID),
				zap.Error(err))
			return
		}
		if _, err := m.service.startCodingAgent(ctx, attempt, task); err != nil {
			m.logger.Error("failed to start coding agent after setup",
				zap.String("attempt_id", attempt.ID),
				zap.Error(err))
			m.service.appendActivity(ctx, attempt.ID, models.ActivityAttemptFailed, map[string]any{
				"reason": err.Error(),
			})
		}

	case models.ProcessKindCodingAgent:
		m.markTaskInReview(ctx, attempt)
		m.startDevServer(ctx, attempt)

	case models.ProcessKindDevServer:
		// terminal stage
	}
}

// markTaskInReview moves the task to in-review once its agent has finished.
// Best effort; a done task is left alone.
func (m *Monitor) markTaskInReview(ctx context.Context, attempt *models.TaskAttempt) {
	task, err := m.service.repo.GetTask(ctx, attempt.TaskID)
	if err != nil {
		m.logger.Warn("failed to load task for review transition",
			zap.String("attempt_id", attempt.ID),
			zap.Error(err))
		return
	}
	if task.Status == models.TaskStatusDone || task.Status == models.TaskStatusInReview {
		return
	}
	task.Status = models.TaskStatusInReview
	if err := m.service.repo.UpdateTask(ctx, task); err != nil {
		m.logger.Warn("failed to move task to in-review",
			zap.String("task_id", task.ID),
			zap.Error(err))
	}
}

// startDevServer launches the project's dev server after a successful
// agent run. Failure to start it does not fail the attempt.
func (m *Monitor) startDevServer(ctx context.Context, attempt *models.TaskAttempt) {
	task, err := m.service.repo.GetTask(ctx, attempt.TaskID)
	if err != nil {
		m.logger.Warn("failed to load task for dev server stage",
			zap.String("attempt_id", attempt.ID),
			zap.Error(err))
		return
	}
	project, err := m.service.repo.GetProject(ctx, task.ProjectID)
	if err != nil {
		m.logger.Warn("failed to load project for dev server stage",
			zap.String("attempt_id", attempt.ID),
			zap.Error(err))
		return
	}
	if !project.HasDevScript() {
		return
	}
	if _, err := m.service.startProcess(ctx, processSpawn{
		attempt: attempt,
		task:    task,
		kind:    models.ProcessKindDevServer,
		exec:    executor.NewDevServerExecutor(*project.DevScript),
	}); err != nil {
		m.logger.Warn("failed to start dev server",
			zap.String("attempt_id", attempt.ID),
			zap.Error(err))
	}
}
