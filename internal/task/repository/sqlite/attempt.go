package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codecommand/codecommand/internal/task/models"
)

// CreateTaskAttempt creates a new task attempt.
func (r *Repository) CreateTaskAttempt(ctx context.Context, attempt *models.TaskAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	attempt.CreatedAt = now
	attempt.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO task_attempts (id, task_id, branch, worktree_path, executor, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), attempt.ID, attempt.TaskID, attempt.Branch, attempt.WorktreePath, attempt.Executor, attempt.CreatedAt, attempt.UpdatedAt)
	return err
}

// GetTaskAttempt retrieves a task attempt by ID.
func (r *Repository) GetTaskAttempt(ctx context.Context, id string) (*models.TaskAttempt, error) {
	attempt := &models.TaskAttempt{}
	err := r.ro.QueryRowContext(ctx, r.ro.Rebind(`
		SELECT id, task_id, branch, worktree_path, executor, created_at, updated_at
		FROM task_attempts WHERE id = ?
	`), id).Scan(&attempt.ID, &attempt.TaskID, &attempt.Branch, &attempt.WorktreePath, &attempt.Executor, &attempt.CreatedAt, &attempt.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task attempt not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

// ListTaskAttempts returns all attempts for a task, newest first.
func (r *Repository) ListTaskAttempts(ctx context.Context, taskID string) ([]*models.TaskAttempt, error) {
	rows, err := r.ro.QueryContext(ctx, r.ro.Rebind(`
		SELECT id, task_id, branch, worktree_path, executor, created_at, updated_at
		FROM task_attempts WHERE task_id = ?
		ORDER BY created_at DESC
	`), taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var attempts []*models.TaskAttempt
	for rows.Next() {
		attempt := &models.TaskAttempt{}
		if err := rows.Scan(&attempt.ID, &attempt.TaskID, &attempt.Branch, &attempt.WorktreePath, &attempt.Executor, &attempt.CreatedAt, &attempt.UpdatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}
