package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codecommand/codecommand/internal/task/models"
)

// CreateTaskAttemptActivity appends an activity row. Activities are
// append-only; there is no update or delete.
func (r *Repository) CreateTaskAttemptActivity(ctx context.Context, activity *models.TaskAttemptActivity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	if activity.Payload == "" {
		activity.Payload = "{}"
	}
	activity.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO task_attempt_activities (id, task_attempt_id, kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), activity.ID, activity.TaskAttemptID, activity.Kind, activity.Payload, activity.CreatedAt)
	return err
}

// ListTaskAttemptActivities returns an attempt's activities oldest first,
// the order the UI replays them in.
func (r *Repository) ListTaskAttemptActivities(ctx context.Context, attemptID string) ([]*models.TaskAttemptActivity, error) {
	rows, err := r.ro.QueryContext(ctx, r.ro.Rebind(`
		SELECT id, task_attempt_id, kind, payload, created_at
		FROM task_attempt_activities WHERE task_attempt_id = ?
		ORDER BY created_at ASC
	`), attemptID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var activities []*models.TaskAttemptActivity
	for rows.Next() {
		activity := &models.TaskAttemptActivity{}
		if err := rows.Scan(&activity.ID, &activity.TaskAttemptID, &activity.Kind, &activity.Payload, &activity.CreatedAt); err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}
