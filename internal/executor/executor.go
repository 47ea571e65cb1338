// Package executor adapts external coding-agent CLIs to a uniform contract.
//
// Every driver knows three things about its agent: the command line that
// launches it, the stdin convention that delivers the prompt, and the
// streaming log dialect it emits on stdout. Spawn starts the agent inside
// an attempt's worktree (in its own process group, via internal/execution)
// and NormalizeLogs translates the captured stdout into the canonical
// transcript model shared by every agent.
//
// Follow-up variants quote a previously captured session id back to the
// agent so it resumes prior context in the same worktree.
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/codecommand/codecommand/internal/execution"
	"github.com/codecommand/codecommand/internal/task/models"
)

// Executor is the capability set every agent driver implements.
type Executor interface {
	// Spawn builds the agent command line and starts it in a new process
	// group with stdio piped, working directory set to the worktree, and
	// the prompt written to stdin (which is then closed).
	Spawn(ctx context.Context, task *models.Task, worktreePath string) (*execution.Child, error)

	// NormalizeLogs parses the captured stdout into the canonical
	// transcript. It is total: any input yields a conversation.
	NormalizeLogs(logs string, worktreePath string) (*NormalizedConversation, error)
}

// Factory builds executors, applying profile command overrides when a
// profiles file is configured.
type Factory struct {
	profiles Profiles
}

// NewFactory creates a factory with the given profile overrides.
// A nil map means every driver uses its built-in command.
func NewFactory(profiles Profiles) *Factory {
	return &Factory{profiles: profiles}
}

// NewExecutor returns a fresh-run executor for the given kind.
func (f *Factory) NewExecutor(kind models.ExecutorKind) (Executor, error) {
	switch kind {
	case models.ExecutorEcho:
		return NewEchoExecutor(), nil
	case models.ExecutorClaude:
		e := NewClaudeExecutor()
		if cmd := f.profiles.CommandFor(kind); cmd != "" {
			e.command = cmd
		}
		return e, nil
	case models.ExecutorAmp:
		e := NewAmpExecutor()
		if cmd := f.profiles.CommandFor(kind); cmd != "" {
			e.command = cmd
		}
		return e, nil
	case models.ExecutorGemini:
		e := NewGeminiExecutor()
		if cmd := f.profiles.CommandFor(kind); cmd != "" {
			e.command = cmd
		}
		return e, nil
	case models.ExecutorOpencode:
		e := NewOpencodeExecutor()
		if cmd := f.profiles.CommandFor(kind); cmd != "" {
			e.command = cmd
		}
		return e, nil
	default:
		return nil, fmt.Errorf("invalid executor kind: %s", kind)
	}
}

// NewFollowupExecutor returns a resume executor for the given kind. The
// session id was captured from the agent's earlier output; the prompt is
// the user's follow-up text, passed verbatim.
func (f *Factory) NewFollowupExecutor(kind models.ExecutorKind, sessionID, prompt string) (Executor, error) {
	switch kind {
	case models.ExecutorClaude:
		e := NewClaudeFollowupExecutor(sessionID, prompt)
		if cmd := f.profiles.FollowupCommandFor(kind, sessionID); cmd != "" {
			e.command = cmd
		}
		return e, nil
	case models.ExecutorAmp:
		e := NewAmpFollowupExecutor(sessionID, prompt)
		if cmd := f.profiles.FollowupCommandFor(kind, sessionID); cmd != "" {
			e.command = cmd
		}
		return e, nil
	case models.ExecutorGemini:
		e := NewGeminiFollowupExecutor(sessionID, prompt)
		if cmd := f.profiles.FollowupCommandFor(kind, sessionID); cmd != "" {
			e.command = cmd
		}
		return e, nil
	case models.ExecutorOpencode:
		e := NewOpencodeFollowupExecutor(sessionID, prompt)
		if cmd := f.profiles.FollowupCommandFor(kind, sessionID); cmd != "" {
			e.command = cmd
		}
		return e, nil
	default:
		return nil, fmt.Errorf("executor kind %s does not support follow-up", kind)
	}
}

var defaultFactory = NewFactory(nil)

// NewExecutor returns a fresh-run executor using built-in commands.
func NewExecutor(kind models.ExecutorKind) (Executor, error) {
	return defaultFactory.NewExecutor(kind)
}

// NewFollowupExecutor returns a resume executor using built-in commands.
func NewFollowupExecutor(kind models.ExecutorKind, sessionID, prompt string) (Executor, error) {
	return defaultFactory.NewFollowupExecutor(kind, sessionID, prompt)
}

// TaskPrompt renders the prompt block sent to coding agents on a fresh run:
// the owning project id, a blank line, the task title, and the description
// when the task has one.
func TaskPrompt(task *models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "project_id: %s\n\n", task.ProjectID)
	fmt.Fprintf(&b, "Task title: %s", task.Title)
	if task.Description != nil && strings.TrimSpace(*task.Description) != "" {
		fmt.Fprintf(&b, "\nTask description: %s", *task.Description)
	}
	return b.String()
}

// agentSpawn carries everything spawnAgent needs to start one child and
// report failures with context.
type agentSpawn struct {
	command string            // full shell command line
	dir     string            // the attempt worktree
	env     map[string]string // extra environment for the agent
	prompt  string            // written to stdin, which is then closed
	taskID  string
	context string // human-readable description of what the spawn was for
}

// spawnAgent starts the child and delivers the prompt. On a stdin failure
// the just-started group is killed so no orphan survives the error.
func spawnAgent(ctx context.Context, req agentSpawn) (*execution.Child, error) {
	child, err := execution.Spawn(ctx, execution.Spec{
		Command: req.command,
		Dir:     req.dir,
		Env:     req.env,
	})
	if err != nil {
		return nil, &SpawnError{
			Command: req.command,
			Dir:     req.dir,
			TaskID:  req.taskID,
			Context: req.context,
			Err:     err,
		}
	}

	if err := child.SendStdin(req.prompt); err != nil {
		_ = child.KillGroup()
		return nil, &StdinError{
			Command: req.command,
			Dir:     req.dir,
			TaskID:  req.taskID,
			Context: req.context,
			Err:     err,
		}
	}
	return child, nil
}
