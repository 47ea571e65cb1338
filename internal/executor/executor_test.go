package executor

import (
	"errors"
	"strings"
	"testing"

	"github.com/codecommand/codecommand/internal/task/models"
)

func strPtr(s string) *string { return &s }

func TestTaskPrompt(t *testing.T) {
	task := &models.Task{
		ID:        "6b9d0d3e-6f0a-4e3e-9a6e-000000000001",
		ProjectID: "f0f0f0f0-0000-4000-8000-000000000002",
		Title:     "Add login page",
	}

	got := TaskPrompt(task)
	want := "project_id: f0f0f0f0-0000-4000-8000-000000000002\n\nTask title: Add login page"
	if got != want {
		t.Errorf("TaskPrompt() = %q, want %q", got, want)
	}

	task.Description = strPtr("Use the existing auth service.")
	got = TaskPrompt(task)
	want += "\nTask description: Use the existing auth service."
	if got != want {
		t.Errorf("TaskPrompt() with description = %q, want %q", got, want)
	}

	task.Description = strPtr("   \n ")
	if got := TaskPrompt(task); strings.Contains(got, "Task description") {
		t.Errorf("TaskPrompt() rendered blank description: %q", got)
	}
}

func TestNewExecutorKinds(t *testing.T) {
	for _, kind := range models.ExecutorKinds {
		e, err := NewExecutor(kind)
		if err != nil {
			t.Errorf("NewExecutor(%s) error: %v", kind, err)
		}
		if e == nil {
			t.Errorf("NewExecutor(%s) returned nil", kind)
		}
	}

	if _, err := NewExecutor(models.ExecutorKind("vim")); err == nil {
		t.Error("NewExecutor(vim) succeeded, want error")
	}
}

func TestNewFollowupExecutorKinds(t *testing.T) {
	for _, kind := range []models.ExecutorKind{
		models.ExecutorClaude,
		models.ExecutorAmp,
		models.ExecutorGemini,
		models.ExecutorOpencode,
	} {
		e, err := NewFollowupExecutor(kind, "sess-1", "keep going")
		if err != nil {
			t.Errorf("NewFollowupExecutor(%s) error: %v", kind, err)
		}
		if e == nil {
			t.Errorf("NewFollowupExecutor(%s) returned nil", kind)
		}
	}

	if _, err := NewFollowupExecutor(models.ExecutorEcho, "sess-1", "again"); err == nil {
		t.Error("NewFollowupExecutor(echo) succeeded, want error")
	}
}

func TestFollowupCommandsEmbedSession(t *testing.T) {
	tests := []struct {
		kind models.ExecutorKind
		want string
	}{
		{models.ExecutorClaude, "--resume=sess-42"},
		{models.ExecutorAmp, "threads continue sess-42"},
		{models.ExecutorGemini, "--resume=sess-42"},
		{models.ExecutorOpencode, "--session=sess-42"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e, err := NewFollowupExecutor(tt.kind, "sess-42", "go on")
			if err != nil {
				t.Fatalf("NewFollowupExecutor: %v", err)
			}
			var command string
			switch exec := e.(type) {
			case *ClaudeFollowupExecutor:
				command = exec.command
			case *AmpFollowupExecutor:
				command = exec.command
			case *GeminiFollowupExecutor:
				command = exec.command
			case *OpencodeFollowupExecutor:
				command = exec.command
			default:
				t.Fatalf("unexpected executor type %T", e)
			}
			if !strings.Contains(command, tt.want) {
				t.Errorf("command %q missing %q", command, tt.want)
			}
		})
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"two words", "'two words'"},
		{"don't", `'don'\''t'`},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSpawnErrorUnwrap(t *testing.T) {
	inner := errors.New("no such file")
	err := &SpawnError{Command: "agent", Dir: "/w", TaskID: "t1", Context: "test", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("SpawnError does not unwrap to its cause")
	}
	for _, part := range []string{"agent", "/w", "t1", "test", "no such file"} {
		if !strings.Contains(err.Error(), part) {
			t.Errorf("SpawnError message %q missing %q", err.Error(), part)
		}
	}
}
