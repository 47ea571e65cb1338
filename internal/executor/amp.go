package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codecommand/codecommand/internal/execution"
	"github.com/codecommand/codecommand/internal/task/models"
)

const ampBaseCommand = "npx -y @sourcegraph/amp@latest"

// AmpExecutor runs Sourcegraph Amp in stream-json mode. Amp batches
// conversation state into messages events keyed by thread id.
type AmpExecutor struct {
	command string
}

func NewAmpExecutor() *AmpExecutor {
	return &AmpExecutor{command: ampBaseCommand + " --format=stream-json"}
}

func (e *AmpExecutor) Spawn(ctx context.Context, task *models.Task, worktreePath string) (*execution.Child, error) {
	return spawnAgent(ctx, agentSpawn{
		command: e.command,
		dir:     worktreePath,
		prompt:  TaskPrompt(task),
		taskID:  task.ID,
		context: "Amp execution",
	})
}

func (e *AmpExecutor) NormalizeLogs(logs string, worktreePath string) (*NormalizedConversation, error) {
	return normalizeAmpLogs(logs, worktreePath), nil
}

// AmpFollowupExecutor continues an existing Amp thread.
type AmpFollowupExecutor struct {
	command string
	prompt  string
}

func NewAmpFollowupExecutor(threadID, prompt string) *AmpFollowupExecutor {
	return &AmpFollowupExecutor{
		command: fmt.Sprintf("%s threads continue %s --format=stream-json", ampBaseCommand, threadID),
		prompt:  prompt,
	}
}

func (e *AmpFollowupExecutor) Spawn(ctx context.Context, task *models.Task, worktreePath string) (*execution.Child, error) {
	return spawnAgent(ctx, agentSpawn{
		command: e.command,
		dir:     worktreePath,
		prompt:  e.prompt,
		taskID:  task.ID,
		context: "Amp follow-up execution",
	})
}

func (e *AmpFollowupExecutor) NormalizeLogs(logs string, worktreePath string) (*NormalizedConversation, error) {
	return normalizeAmpLogs(logs, worktreePath), nil
}

// normalizeAmpLogs translates Amp's stream-json output. An initial event
// carries the thread id; messages events carry indexed (index, message)
// pairs whose content lists mirror the Claude item shapes.
func normalizeAmpLogs(logs, worktreePath string) *NormalizedConversation {
	var entries []NormalizedEntry
	var threadID *string

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

		switch payload["type"] {
		case "initial":
			if threadID == nil {
				if tid, ok := payload["threadID"].(string); ok {
					threadID = &tid
				}
			}
		case "messages":
			messages, _ := payload["messages"].([]any)
			for _, pair := range messages {
				entries = append(entries, ampMessageEntries(pair, worktreePath)...)
			}
		case "state", "token-usage", "shutdown":
			// Connection bookkeeping carries no conversation content.
		default:
			entries = append(entries, NormalizedEntry{
				Type:     EntrySystemMessage,
				Content:  "Unrecognized JSON: " + trimmed,
				Metadata: marshalMetadata(value),
			})
		}
	}

	return &NormalizedConversation{
		Entries:      entries,
		SessionID:    threadID,
		ExecutorType: "amp",
	}
}

// ampMessageEntries unpacks one (index, message) pair from a messages
// event. Malformed pairs yield no entries.
func ampMessageEntries(pair any, worktreePath string) []NormalizedEntry {
	tuple, ok := pair.([]any)
	if !ok || len(tuple) < 2 {
		return nil
	}
	message, ok := tuple[1].(map[string]any)
	if !ok {
		return nil
	}

	role, _ := message["role"].(string)
	entryType := EntryAssistantMessage
	if role == "user" {
		entryType = EntryUserMessage
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
		case "thinking":
			if thinking, ok := ci["thinking"].(string); ok {
				entries = append(entries, NormalizedEntry{
					Type:     EntryThinking,
					Content:  thinking,
					Metadata: marshalMetadata(ci),
				})
			}
		case "tool_use":
			if role != "assistant" {
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
