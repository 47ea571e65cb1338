package executor

import (
	"context"
	"strings"

	"github.com/codecommand/codecommand/internal/execution"
	"github.com/codecommand/codecommand/internal/task/models"
)

// ScriptExecutor runs a project-configured shell script in the worktree.
// It backs both setup scripts, which run once before the coding agent,
// and dev servers, which keep running until stopped. Scripts receive no
// prompt; stdin is closed immediately so reads see EOF.
type ScriptExecutor struct {
	script string
	label  string
	kind   string
}

func NewSetupScriptExecutor(script string) *ScriptExecutor {
	return &ScriptExecutor{script: script, label: "setup script execution", kind: "setupscript"}
}

func NewDevServerExecutor(script string) *ScriptExecutor {
	return &ScriptExecutor{script: script, label: "dev server execution", kind: "devserver"}
}

func (e *ScriptExecutor) Spawn(ctx context.Context, task *models.Task, worktreePath string) (*execution.Child, error) {
	return spawnAgent(ctx, agentSpawn{
		command: e.script,
		dir:     worktreePath,
		taskID:  task.ID,
		context: e.label,
	})
}

// NormalizeLogs surfaces each output line as a system message, untouched.
// Script output has no structure worth parsing.
func (e *ScriptExecutor) NormalizeLogs(logs string, worktreePath string) (*NormalizedConversation, error) {
	var entries []NormalizedEntry
	for _, line := range strings.Split(logs, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		entries = append(entries, NormalizedEntry{
			Type:    EntrySystemMessage,
			Content: trimmed,
		})
	}
	return &NormalizedConversation{
		Entries:      entries,
		ExecutorType: e.kind,
	}, nil
}
