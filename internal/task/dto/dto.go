// Package dto defines the JSON shapes returned by the REST surface.
package dto

import (
	"time"
)

type ProjectDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	GitRepoPath string    `json:"git_repo_path"`
	SetupScript *string   `json:"setup_script,omitempty"`
	DevScript   *string   `json:"dev_script,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type TaskDTO struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type AttemptDTO struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"task_id"`
	Branch       string    `json:"branch"`
	WorktreePath string    `json:"worktree_path"`
	Executor     string    `json:"executor"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ProcessDTO struct {
	ID            string     `json:"id"`
	TaskAttemptID string     `json:"task_attempt_id"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	ExitCode      *int64     `json:"exit_code,omitempty"`
	Stdout        string     `json:"stdout"`
	Stderr        string     `json:"stderr"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type ActivityDTO struct {
	ID            string    `json:"id"`
	TaskAttemptID string    `json:"task_attempt_id"`
	Kind          string    `json:"kind"`
	Payload       string    `json:"payload"`
	CreatedAt     time.Time `json:"created_at"`
}

type SettingsDTO struct {
	DefaultExecutor   string `json:"default_executor"`
	SoundAlerts       bool   `json:"sound_alerts"`
	PushNotifications bool   `json:"push_notifications"`
	SoundFile         string `json:"sound_file"`
	AnalyticsEnabled  bool   `json:"analytics_enabled"`
	AnalyticsUserID   string `json:"analytics_user_id"`
	GitHubUsername    string `json:"github_username"`
	GitHubEmail       string `json:"github_email"`
	EditorType        string `json:"editor_type"`
	EditorCommand     string `json:"editor_command"`
}

type ListProjectsResponse struct {
	Projects []ProjectDTO `json:"projects"`
	Total    int          `json:"total"`
}

type ListTasksResponse struct {
	Tasks []TaskDTO `json:"tasks"`
	Total int       `json:"total"`
}

type ListAttemptsResponse struct {
	Attempts []AttemptDTO `json:"attempts"`
	Total    int          `json:"total"`
}

type ListProcessesResponse struct {
	Processes []ProcessDTO `json:"processes"`
	Total     int          `json:"total"`
}

type ListActivitiesResponse struct {
	Activities []ActivityDTO `json:"activities"`
	Total      int           `json:"total"`
}

type DiffResponse struct {
	Diff string `json:"diff"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}
