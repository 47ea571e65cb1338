// Package sqlite implements the repository over a relational store. The
// SQL sticks to the dialect both SQLite and PostgreSQL accept; driver
// differences go through Rebind and the dialect helpers.
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Repository provides relational storage for the orchestrator entities.
type Repository struct {
	db     *sqlx.DB // writer
	ro     *sqlx.DB // reader (read-only pool)
	ownsDB bool
}

// NewWithDB creates a repository with existing database connections
// (shared ownership).
func NewWithDB(writer, reader *sqlx.DB) (*Repository, error) {
	return newRepository(writer, reader, false)
}

func newRepository(writer, reader *sqlx.DB, ownsDB bool) (*Repository, error) {
	repo := &Repository{db: writer, ro: reader, ownsDB: ownsDB}
	if err := repo.initSchema(); err != nil {
		if ownsDB {
			if closeErr := writer.Close(); closeErr != nil {
				return nil, fmt.Errorf("failed to close database after schema error: %w", closeErr)
			}
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

// Close closes the database connection when this repository owns it.
func (r *Repository) Close() error {
	if !r.ownsDB {
		return nil
	}
	return r.db.Close()
}

// DB returns the underlying sql.DB instance for shared access.
func (r *Repository) DB() *sql.DB {
	return r.db.DB
}

// initSchema creates the tables and indexes if they don't exist.
func (r *Repository) initSchema() error {
	if err := r.initProjectSchema(); err != nil {
		return err
	}
	if err := r.initAttemptSchema(); err != nil {
		return err
	}
	if err := r.runMigrations(); err != nil {
		return err
	}
	return r.initIndexes()
}

func (r *Repository) initProjectSchema() error {
	_, err := r.db.Exec(`
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		git_repo_path TEXT NOT NULL,
		setup_script TEXT,
		dev_script TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'todo',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);
	`)
	return err
}

func (r *Repository) initAttemptSchema() error {
	_, err := r.db.Exec(`
	CREATE TABLE IF NOT EXISTS task_attempts (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		branch TEXT NOT NULL,
		worktree_path TEXT NOT NULL,
		executor TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS execution_processes (
		id TEXT PRIMARY KEY,
		task_attempt_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		exit_code INTEGER,
		stdout TEXT NOT NULL DEFAULT '',
		stderr TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		FOREIGN KEY (task_attempt_id) REFERENCES task_attempts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS executor_sessions (
		id TEXT PRIMARY KEY,
		execution_process_id TEXT NOT NULL UNIQUE,
		task_attempt_id TEXT NOT NULL,
		session_id TEXT,
		prompt TEXT,
		summary TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (execution_process_id) REFERENCES execution_processes(id) ON DELETE CASCADE,
		FOREIGN KEY (task_attempt_id) REFERENCES task_attempts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS task_attempt_activities (
		id TEXT PRIMARY KEY,
		task_attempt_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (task_attempt_id) REFERENCES task_attempts(id) ON DELETE CASCADE
	);
	`)
	return err
}

// runMigrations applies idempotent migrations for schema evolution.
func (r *Repository) runMigrations() error {
	// No column migrations yet; the schema above is the first shape.
	return nil
}

func (r *Repository) initIndexes() error {
	_, err := r.db.Exec(`
	CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_task_attempts_task_id ON task_attempts(task_id);
	CREATE INDEX IF NOT EXISTS idx_execution_processes_attempt_id ON execution_processes(task_attempt_id);
	CREATE INDEX IF NOT EXISTS idx_execution_processes_status ON execution_processes(status);
	CREATE INDEX IF NOT EXISTS idx_executor_sessions_attempt_id ON executor_sessions(task_attempt_id);
	CREATE INDEX IF NOT EXISTS idx_activities_attempt_id ON task_attempt_activities(task_attempt_id);
	`)
	return err
}
