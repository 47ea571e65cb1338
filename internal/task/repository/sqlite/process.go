package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codecommand/codecommand/internal/task/models"
)

// CreateExecutionProcess inserts a Running execution process row.
func (r *Repository) CreateExecutionProcess(ctx context.Context, process *models.ExecutionProcess) error {
	if process.ID == "" {
		process.ID = uuid.New().String()
	}
	if process.Status == "" {
		process.Status = models.ProcessStatusRunning
	}
	if process.StartedAt.IsZero() {
		process.StartedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO execution_processes (id, task_attempt_id, kind, status, exit_code, stdout, stderr, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), process.ID, process.TaskAttemptID, process.Kind, process.Status, process.ExitCode, process.Stdout, process.Stderr, process.StartedAt, process.CompletedAt)
	return err
}

// GetExecutionProcess retrieves an execution process by ID.
func (r *Repository) GetExecutionProcess(ctx context.Context, id string) (*models.ExecutionProcess, error) {
	process := &models.ExecutionProcess{}
	var exitCode sql.NullInt64
	var completedAt sql.NullTime
	err := r.ro.QueryRowContext(ctx, r.ro.Rebind(`
		SELECT id, task_attempt_id, kind, status, exit_code, stdout, stderr, started_at, completed_at
		FROM execution_processes WHERE id = ?
	`), id).Scan(&process.ID, &process.TaskAttemptID, &process.Kind, &process.Status, &exitCode, &process.Stdout, &process.Stderr, &process.StartedAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("execution process not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	if exitCode.Valid {
		process.ExitCode = &exitCode.Int64
	}
	if completedAt.Valid {
		process.CompletedAt = &completedAt.Time
	}
	return process, nil
}

// ListExecutionProcesses returns all processes for an attempt, oldest first
// so the stage sequence reads in execution order.
func (r *Repository) ListExecutionProcesses(ctx context.Context, attemptID string) ([]*models.ExecutionProcess, error) {
	rows, err := r.ro.QueryContext(ctx, r.ro.Rebind(`
		SELECT id, task_attempt_id, kind, status, exit_code, stdout, stderr, started_at, completed_at
		FROM execution_processes WHERE task_attempt_id = ?
		ORDER BY started_at ASC
	`), attemptID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanProcesses(rows)
}

// GetLatestRunningProcessForAttempt returns the most recently started
// Running process for an attempt, or a not-found error when none is
// running.
func (r *Repository) GetLatestRunningProcessForAttempt(ctx context.Context, attemptID string) (*models.ExecutionProcess, error) {
	rows, err := r.ro.QueryContext(ctx, r.ro.Rebind(`
		SELECT id, task_attempt_id, kind, status, exit_code, stdout, stderr, started_at, completed_at
		FROM execution_processes
		WHERE task_attempt_id = ? AND status = ?
		ORDER BY started_at DESC
	`), attemptID, models.ProcessStatusRunning)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	processes, err := scanProcesses(rows)
	if err != nil {
		return nil, err
	}
	if len(processes) == 0 {
		return nil, fmt.Errorf("no running execution process for attempt: %s", attemptID)
	}
	return processes[0], nil
}

// UpdateExecutionProcessOutput refreshes the captured output of a running
// process so readers see logs before termination.
func (r *Repository) UpdateExecutionProcessOutput(ctx context.Context, id, stdout, stderr string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE execution_processes SET stdout = ?, stderr = ?
		WHERE id = ?
	`), stdout, stderr, id)
	return err
}

// CompleteExecutionProcess transitions a Running row to a terminal status
// with its final output. The status guard makes the transition happen at
// most once; completing an already-terminal row is an error.
func (r *Repository) CompleteExecutionProcess(ctx context.Context, id string, status models.ExecutionProcessStatus, exitCode *int64, stdout, stderr string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}

	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE execution_processes
		SET status = ?, exit_code = ?, stdout = ?, stderr = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`), status, exitCode, stdout, stderr, time.Now().UTC(), id, models.ProcessStatusRunning)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("execution process not running: %s", id)
	}
	return nil
}

// RecoverOrphanedProcesses marks every Running row as failed. Called once
// at startup: rows left Running by a previous server run have no live
// child behind them anymore.
func (r *Repository) RecoverOrphanedProcesses(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE execution_processes
		SET status = ?, completed_at = ?
		WHERE status = ?
	`), models.ProcessStatusFailed, time.Now().UTC(), models.ProcessStatusRunning)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanProcesses(rows *sql.Rows) ([]*models.ExecutionProcess, error) {
	var processes []*models.ExecutionProcess
	for rows.Next() {
		process := &models.ExecutionProcess{}
		var exitCode sql.NullInt64
		var completedAt sql.NullTime
		if err := rows.Scan(&process.ID, &process.TaskAttemptID, &process.Kind, &process.Status, &exitCode, &process.Stdout, &process.Stderr, &process.StartedAt, &completedAt); err != nil {
			return nil, err
		}
		if exitCode.Valid {
			process.ExitCode = &exitCode.Int64
		}
		if completedAt.Valid {
			process.CompletedAt = &completedAt.Time
		}
		processes = append(processes, process)
	}
	return processes, rows.Err()
}
