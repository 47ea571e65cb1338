package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codecommand/codecommand/internal/execution"
	"github.com/codecommand/codecommand/internal/task/models"
)

const claudeBaseCommand = "npx -y @anthropic-ai/claude-code@latest -p --dangerously-skip-permissions --verbose --output-format=stream-json"

// ClaudeExecutor runs Claude Code in print mode with stream-json output.
// The prompt goes in on stdin; every stdout line is a JSON event.
type ClaudeExecutor struct {
	command string
}

func NewClaudeExecutor() *ClaudeExecutor {
	return &ClaudeExecutor{command: claudeBaseCommand}
}

func (e *ClaudeExecutor) Spawn(ctx context.Context, task *models.Task, worktreePath string) (*execution.Child, error) {
	return spawnAgent(ctx, agentSpawn{
		command: e.command,
		dir:     worktreePath,
		env:     map[string]string{"NODE_NO_WARNINGS": "1"},
		prompt:  TaskPrompt(task),
		taskID:  task.ID,
		context: "Claude Code execution",
	})
}

func (e *ClaudeExecutor) NormalizeLogs(logs string, worktreePath string) (*NormalizedConversation, error) {
	return normalizeClaudeLogs(logs, worktreePath), nil
}

// ClaudeFollowupExecutor resumes a recorded Claude session with a new
// prompt in the same worktree.
type ClaudeFollowupExecutor struct {
	command string
	prompt  string
}

func NewClaudeFollowupExecutor(sessionID, prompt string) *ClaudeFollowupExecutor {
	return &ClaudeFollowupExecutor{
		command: fmt.Sprintf("%s --resume=%s", claudeBaseCommand, sessionID),
		prompt:  prompt,
	}
}

func (e *ClaudeFollowupExecutor) Spawn(ctx context.Context, task *models.Task, worktreePath string) (*execution.Child, error) {
	return spawnAgent(ctx, agentSpawn{
		command: e.command,
		dir:     worktreePath,
		env:     map[string]string{"NODE_NO_WARNINGS": "1"},
		prompt:  e.prompt,
		taskID:  task.ID,
		context: "Claude Code follow-up execution",
	})
}

func (e *ClaudeFollowupExecutor) NormalizeLogs(logs string, worktreePath string) (*NormalizedConversation, error) {
	return normalizeClaudeLogs(logs, worktreePath), nil
}

// normalizeClaudeLogs walks the stream-json output line by line. Lines
// that fail to parse surface as raw-output system messages, recognized
// event shapes become transcript entries, and anything else surfaces as
// an unrecognized-JSON system message, so the normalizer never drops
// input silently (result events excepted, they only duplicate totals).
func normalizeClaudeLogs(logs, worktreePath string) *NormalizedConversation {
	var entries []NormalizedEntry
	var sessionID *string

	for _, line := range strings.Split(logs, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		var value any
		if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
			entries = append(entries, NormalizedEntry{
				Type:    EntrySystemMessage,
				Content: "Raw output: " + trimmed,
			})
			continue
		}
		payload, _ := value.(map[string]any)

		if sessionID == nil {
			if sid, ok := payload["session_id"].(string); ok {
				sessionID = &sid
			}
		}

		msgType, _ := payload["type"].(string)
		processed := false
		switch msgType {
		case "assistant":
			entries = append(entries, claudeMessageEntries(payload, EntryAssistantMessage, true, worktreePath)...)
			processed = true
		case "user":
			entries = append(entries, claudeMessageEntries(payload, EntryUserMessage, false, worktreePath)...)
			processed = true
		case "system":
			if subtype, _ := payload["subtype"].(string); subtype == "init" {
				model := "unknown"
				if m, ok := payload["model"].(string); ok {
					model = m
				}
				entries = append(entries, NormalizedEntry{
					Type:     EntrySystemMessage,
					Content:  "System initialized with model: " + model,
					Metadata: marshalMetadata(value),
				})
			}
			processed = true
		case "result":
			// Final result summary duplicates information already
			// streamed; skip it.
			processed = true
		}

		if !processed {
			entries = append(entries, NormalizedEntry{
				Type:     EntrySystemMessage,
				Content:  "Unrecognized JSON: " + trimmed,
				Metadata: marshalMetadata(value),
			})
		}
	}

	return &NormalizedConversation{
		Entries:      entries,
		SessionID:    sessionID,
		ExecutorType: "claude",
	}
}

// claudeMessageEntries extracts transcript entries from an assistant or
// user event. Both carry message.content as a list of typed items; only
// assistant events carry tool uses.
func claudeMessageEntries(payload map[string]any, entryType EntryType, includeTools bool, worktreePath string) []NormalizedEntry {
	message, ok := payload["message"].(map[string]any)
	if !ok {
		return nil
	}
	content, ok := message["content"].([]any)
	if !ok {
		return nil
	}

	var entries []NormalizedEntry
	for _, item := range content {
		ci, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch ci["type"] {
		case "text":
			if text, ok := ci["text"].(string); ok {
				entries = append(entries, NormalizedEntry{
					Type:     entryType,
					Content:  text,
					Metadata: marshalMetadata(ci),
				})
			}
		case "tool_use":
			if !includeTools {
				continue
			}
			toolName, ok := ci["name"].(string)
			if !ok {
				continue
			}
			input := ci["input"]
			action := extractActionType(toolName, input, worktreePath)
			entries = append(entries, NormalizedEntry{
				Type:     EntryToolUse,
				Content:  generateConciseContent(toolName, input, action, worktreePath),
				ToolName: toolName,
				Action:   &action,
				Metadata: marshalMetadata(ci),
			})
		}
	}
	return entries
}
