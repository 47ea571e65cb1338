package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codecommand/codecommand/internal/db/dialect"
	"github.com/codecommand/codecommand/internal/task/models"
)

// CreateTask creates a new task.
func (r *Repository) CreateTask(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusTodo
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO tasks (id, project_id, title, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), task.ID, task.ProjectID, task.Title, task.Description, task.Status, task.CreatedAt, task.UpdatedAt)
	return err
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*models.Task, error) {
	task := &models.Task{}
	err := r.ro.QueryRowContext(ctx, r.ro.Rebind(`
		SELECT id, project_id, title, description, status, created_at, updated_at
		FROM tasks WHERE id = ?
	`), id).Scan(&task.ID, &task.ProjectID, &task.Title, &task.Description, &task.Status, &task.CreatedAt, &task.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask updates an existing task.
func (r *Repository) UpdateTask(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE tasks SET title = ?, description = ?, status = ?, updated_at = ?
		WHERE id = ?
	`), task.Title, task.Description, task.Status, task.UpdatedAt, task.ID)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("task not found: %s", task.ID)
	}
	return nil
}

// DeleteTask deletes a task by ID.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM tasks WHERE id = ?`), id)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("task not found: %s", id)
	}
	return nil
}

// ListTasks returns tasks for a project, newest first. A non-empty query
// filters by title or description, case-insensitively where the backend
// supports it.
func (r *Repository) ListTasks(ctx context.Context, projectID, query string) ([]*models.Task, error) {
	var rows *sql.Rows
	var err error
	if query == "" {
		rows, err = r.ro.QueryContext(ctx, r.ro.Rebind(`
			SELECT id, project_id, title, description, status, created_at, updated_at
			FROM tasks WHERE project_id = ?
			ORDER BY created_at DESC
		`), projectID)
	} else {
		like := dialect.Like(r.ro.DriverName())
		pattern := "%" + query + "%"
		rows, err = r.ro.QueryContext(ctx, r.ro.Rebind(fmt.Sprintf(`
			SELECT id, project_id, title, description, status, created_at, updated_at
			FROM tasks WHERE project_id = ? AND (title %s ? OR description %s ?)
			ORDER BY created_at DESC
		`, like, like)), projectID, pattern, pattern)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tasks []*models.Task
	for rows.Next() {
		task := &models.Task{}
		if err := rows.Scan(&task.ID, &task.ProjectID, &task.Title, &task.Description, &task.Status, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
