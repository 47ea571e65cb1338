// Package models defines the persistent entities of the orchestrator:
// projects, tasks, task attempts, execution processes, executor sessions,
// and attempt activities.
package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusInReview   TaskStatus = "in-review"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// ParseTaskStatus parses a task status string. It is case-insensitive and
// accepts the common punctuation variants (inprogress, in_progress,
// in-progress, inreview, in_review, in-review, completed, canceled).
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "todo":
		return TaskStatusTodo, nil
	case "inprogress", "in-progress", "in_progress":
		return TaskStatusInProgress, nil
	case "inreview", "in-review", "in_review":
		return TaskStatusInReview, nil
	case "done", "completed":
		return TaskStatusDone, nil
	case "cancelled", "canceled":
		return TaskStatusCancelled, nil
	default:
		return "", fmt.Errorf("invalid task status: %s", s)
	}
}

// ExecutorKind identifies a coding-agent driver.
type ExecutorKind string

const (
	ExecutorEcho     ExecutorKind = "echo"
	ExecutorClaude   ExecutorKind = "claude"
	ExecutorAmp      ExecutorKind = "amp"
	ExecutorGemini   ExecutorKind = "gemini"
	ExecutorOpencode ExecutorKind = "opencode"
)

// ExecutorKinds lists every selectable executor in display order.
var ExecutorKinds = []ExecutorKind{
	ExecutorEcho,
	ExecutorClaude,
	ExecutorAmp,
	ExecutorGemini,
	ExecutorOpencode,
}

// ExecutorLabels maps executor kinds to human-readable names.
var ExecutorLabels = map[ExecutorKind]string{
	ExecutorEcho:     "Echo (test)",
	ExecutorClaude:   "Claude",
	ExecutorAmp:      "Amp",
	ExecutorGemini:   "Gemini",
	ExecutorOpencode: "OpenCode",
}

// ParseExecutorKind parses an executor kind string (case-insensitive).
func ParseExecutorKind(s string) (ExecutorKind, error) {
	kind := ExecutorKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ExecutorKinds {
		if kind == known {
			return kind, nil
		}
	}
	return "", fmt.Errorf("invalid executor kind: %s", s)
}

// ExecutionProcessKind distinguishes the stages run inside an attempt.
type ExecutionProcessKind string

const (
	ProcessKindSetupScript ExecutionProcessKind = "setupscript"
	ProcessKindCodingAgent ExecutionProcessKind = "codingagent"
	ProcessKindDevServer   ExecutionProcessKind = "devserver"
)

// ExecutionProcessStatus is the lifecycle state of one spawned process.
// It begins Running and transitions exactly once to a terminal state.
type ExecutionProcessStatus string

const (
	ProcessStatusRunning   ExecutionProcessStatus = "running"
	ProcessStatusCompleted ExecutionProcessStatus = "completed"
	ProcessStatusFailed    ExecutionProcessStatus = "failed"
	ProcessStatusKilled    ExecutionProcessStatus = "killed"
)

// IsTerminal reports whether the status is one of the terminal states.
func (s ExecutionProcessStatus) IsTerminal() bool {
	return s == ProcessStatusCompleted || s == ProcessStatusFailed || s == ProcessStatusKilled
}

// Project is a git repository registered with the orchestrator.
type Project struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	GitRepoPath string    `json:"git_repo_path" db:"git_repo_path"`
	SetupScript *string   `json:"setup_script,omitempty" db:"setup_script"`
	DevScript   *string   `json:"dev_script,omitempty" db:"dev_script"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// HasSetupScript reports whether the project defines a non-empty setup script.
func (p *Project) HasSetupScript() bool {
	return p.SetupScript != nil && strings.TrimSpace(*p.SetupScript) != ""
}

// HasDevScript reports whether the project defines a non-empty dev script.
func (p *Project) HasDevScript() bool {
	return p.DevScript != nil && strings.TrimSpace(*p.DevScript) != ""
}

// Task is a unit of work within a project.
type Task struct {
	ID          string     `json:"id" db:"id"`
	ProjectID   string     `json:"project_id" db:"project_id"`
	Title       string     `json:"title" db:"title"`
	Description *string    `json:"description,omitempty" db:"description"`
	Status      TaskStatus `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// TaskAttempt is one run of an executor on a task inside a dedicated
// git worktree and branch.
type TaskAttempt struct {
	ID           string       `json:"id" db:"id"`
	TaskID       string       `json:"task_id" db:"task_id"`
	Branch       string       `json:"branch" db:"branch"`
	WorktreePath string       `json:"worktree_path" db:"worktree_path"`
	Executor     ExecutorKind `json:"executor" db:"executor"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// ExecutionProcess is one spawned child process belonging to an attempt.
// Stdout and stderr hold the captured output once the process terminates
// (and are refreshed incrementally while it runs).
type ExecutionProcess struct {
	ID            string                 `json:"id" db:"id"`
	TaskAttemptID string                 `json:"task_attempt_id" db:"task_attempt_id"`
	Kind          ExecutionProcessKind   `json:"kind" db:"kind"`
	Status        ExecutionProcessStatus `json:"status" db:"status"`
	ExitCode      *int64                 `json:"exit_code,omitempty" db:"exit_code"`
	Stdout        string                 `json:"stdout" db:"stdout"`
	Stderr        string                 `json:"stderr" db:"stderr"`
	StartedAt     time.Time              `json:"started_at" db:"started_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty" db:"completed_at"`
}

// ExecutorSession carries the agent-provided session handle for one
// execution process. SessionID is derived and monotonic: once observed in
// the agent's output it never changes, and a follow-up executor quotes it
// back to resume context.
type ExecutorSession struct {
	ID                 string    `json:"id" db:"id"`
	ExecutionProcessID string    `json:"execution_process_id" db:"execution_process_id"`
	TaskAttemptID      string    `json:"task_attempt_id" db:"task_attempt_id"`
	SessionID          *string   `json:"session_id,omitempty" db:"session_id"`
	Prompt             *string   `json:"prompt,omitempty" db:"prompt"`
	Summary            *string   `json:"summary,omitempty" db:"summary"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// Activity kinds recorded per attempt. Append-only; used by the UI to
// reconstruct the attempt's event history.
const (
	ActivityAttemptCreated   = "attempt_created"
	ActivityProcessStarted   = "process_started"
	ActivityProcessCompleted = "process_completed"
	ActivityProcessFailed    = "process_failed"
	ActivityProcessKilled    = "process_killed"
	ActivityFollowUpStarted  = "follow_up_started"
	ActivityAttemptFailed    = "attempt_failed"
)

// TaskAttemptActivity is one append-only event in an attempt's history.
type TaskAttemptActivity struct {
	ID            string    `json:"id" db:"id"`
	TaskAttemptID string    `json:"task_attempt_id" db:"task_attempt_id"`
	Kind          string    `json:"kind" db:"kind"`
	Payload       string    `json:"payload" db:"payload"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
