package repository

import (
	"testing"
)

func TestRepository_IndexesCreated(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()

	rows, err := repo.DB().Query(`SELECT name FROM sqlite_master WHERE type = 'index'`)
	if err != nil {
		t.Fatalf("failed to query indexes: %v", err)
	}
	defer rows.Close()

	indexes := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes[name] = true
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("failed to iterate indexes: %v", err)
	}

	required := []string{
		"idx_tasks_project_id",
		"idx_tasks_status",
		"idx_task_attempts_task_id",
		"idx_execution_processes_attempt_id",
		"idx_execution_processes_status",
		"idx_executor_sessions_attempt_id",
		"idx_activities_attempt_id",
	}
	for _, name := range required {
		if !indexes[name] {
			t.Errorf("missing index %s", name)
		}
	}
}
