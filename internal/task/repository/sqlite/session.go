package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codecommand/codecommand/internal/task/models"
)

// CreateExecutorSession creates a session row for an execution process.
func (r *Repository) CreateExecutorSession(ctx context.Context, session *models.ExecutorSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO executor_sessions (id, execution_process_id, task_attempt_id, session_id, prompt, summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), session.ID, session.ExecutionProcessID, session.TaskAttemptID, session.SessionID, session.Prompt, session.Summary, session.CreatedAt, session.UpdatedAt)
	return err
}

// GetExecutorSessionByProcessID retrieves the session row for a process.
func (r *Repository) GetExecutorSessionByProcessID(ctx context.Context, processID string) (*models.ExecutorSession, error) {
	session := &models.ExecutorSession{}
	err := r.ro.QueryRowContext(ctx, r.ro.Rebind(`
		SELECT id, execution_process_id, task_attempt_id, session_id, prompt, summary, created_at, updated_at
		FROM executor_sessions WHERE execution_process_id = ?
	`), processID).Scan(&session.ID, &session.ExecutionProcessID, &session.TaskAttemptID, &session.SessionID, &session.Prompt, &session.Summary, &session.CreatedAt, &session.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("executor session not found for process: %s", processID)
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateExecutorSessionID records the agent-provided session id. The id is
// monotonic: the guard only fills an empty slot, so a value observed once
// never changes.
func (r *Repository) UpdateExecutorSessionID(ctx context.Context, processID, sessionID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE executor_sessions SET session_id = ?, updated_at = ?
		WHERE execution_process_id = ? AND session_id IS NULL
	`), sessionID, time.Now().UTC(), processID)
	return err
}

// UpdateExecutorSessionSummary stores the assistant's closing summary.
func (r *Repository) UpdateExecutorSessionSummary(ctx context.Context, processID, summary string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE executor_sessions SET summary = ?, updated_at = ?
		WHERE execution_process_id = ?
	`), summary, time.Now().UTC(), processID)
	return err
}

// GetSessionIDForAttempt returns the most recently captured session id for
// an attempt, or nil when no execution has reported one yet.
func (r *Repository) GetSessionIDForAttempt(ctx context.Context, attemptID string) (*string, error) {
	var sessionID string
	err := r.ro.QueryRowContext(ctx, r.ro.Rebind(`
		SELECT session_id FROM executor_sessions
		WHERE task_attempt_id = ? AND session_id IS NOT NULL
		ORDER BY created_at DESC
		LIMIT 1
	`), attemptID).Scan(&sessionID)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sessionID, nil
}
