package executor

import (
	"context"
	"strings"

	"github.com/codecommand/codecommand/internal/execution"
	"github.com/codecommand/codecommand/internal/task/models"
)

// EchoExecutor prints the task prompt and exits. It exists for
// deterministic end-to-end testing of the execution pipeline without a
// real agent.
type EchoExecutor struct{}

func NewEchoExecutor() *EchoExecutor {
	return &EchoExecutor{}
}

func (e *EchoExecutor) Spawn(ctx context.Context, task *models.Task, worktreePath string) (*execution.Child, error) {
	return spawnAgent(ctx, agentSpawn{
		command: "echo " + shellQuote(TaskPrompt(task)),
		dir:     worktreePath,
		taskID:  task.ID,
		context: "Echo execution",
	})
}

// NormalizeLogs wraps the whole output in a single assistant message.
func (e *EchoExecutor) NormalizeLogs(logs string, worktreePath string) (*NormalizedConversation, error) {
	var entries []NormalizedEntry
	if trimmed := strings.TrimSpace(logs); trimmed != "" {
		entries = append(entries, NormalizedEntry{
			Type:    EntryAssistantMessage,
			Content: trimmed,
		})
	}
	return &NormalizedConversation{
		Entries:      entries,
		ExecutorType: "echo",
	}, nil
}

// shellQuote single-quotes a string for POSIX sh. Embedded single quotes
// are closed, escaped, and reopened.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
