package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codecommand/codecommand/internal/execution"
	"github.com/codecommand/codecommand/internal/task/models"
)

const opencodeBaseCommand = "npx -y opencode-ai@latest run --print-logs --output-format=stream-json"

// OpencodeExecutor runs OpenCode in non-interactive mode with
// stream-json output.
type OpencodeExecutor struct {
	command string
}

func NewOpencodeExecutor() *OpencodeExecutor {
	return &OpencodeExecutor{command: opencodeBaseCommand}
}

func (e *OpencodeExecutor) Spawn(ctx context.Context, task *models.Task, worktreePath string) (*execution.Child, error) {
	return spawnAgent(ctx, agentSpawn{
		command: e.command,
		dir:     worktreePath,
		prompt:  TaskPrompt(task),
		taskID:  task.ID,
		context: "OpenCode execution",
	})
}

func (e *OpencodeExecutor) NormalizeLogs(logs string, worktreePath string) (*NormalizedConversation, error) {
	return normalizeOpencodeLogs(logs, worktreePath), nil
}

// OpencodeFollowupExecutor resumes a recorded OpenCode session.
type OpencodeFollowupExecutor struct {
	command string
	prompt  string
}

func NewOpencodeFollowupExecutor(sessionID, prompt string) *OpencodeFollowupExecutor {
	return &OpencodeFollowupExecutor{
		command: fmt.Sprintf("%s --session=%s", opencodeBaseCommand, sessionID),
		prompt:  prompt,
	}
}

func (e *OpencodeFollowupExecutor) Spawn(ctx context.Context, task *models.Task, worktreePath string) (*execution.Child, error) {
	return spawnAgent(ctx, agentSpawn{
		command: e.command,
		dir:     worktreePath,
		prompt:  e.prompt,
		taskID:  task.ID,
		context: "OpenCode follow-up execution",
	})
}

func (e *OpencodeFollowupExecutor) NormalizeLogs(logs string, worktreePath string) (*NormalizedConversation, error) {
	return normalizeOpencodeLogs(logs, worktreePath), nil
}

// normalizeOpencodeLogs translates OpenCode's stream-json output. Events
// wrap a part object: text parts carry assistant prose, tool parts carry
// the tool name and its input under state. OpenCode interleaves plain
// log lines with the JSON stream, so unparseable lines are expected and
// surface as raw output.
func normalizeOpencodeLogs(logs, worktreePath string) *NormalizedConversation {
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
			if sid, ok := payload["sessionID"].(string); ok {
				sessionID = &sid
			}
		}

		switch payload["type"] {
		case "step":
			// Step boundaries carry no conversation content.
		case "text":
			part, _ := payload["part"].(map[string]any)
			if text, ok := part["text"].(string); ok {
				entries = append(entries, NormalizedEntry{
					Type:     EntryAssistantMessage,
					Content:  text,
					Metadata: marshalMetadata(value),
				})
			}
		case "tool":
			part, _ := payload["part"].(map[string]any)
			toolName, ok := part["tool"].(string)
			if !ok {
				continue
			}
			var input any
			if state, ok := part["state"].(map[string]any); ok {
				input = state["input"]
			}
			action := extractActionType(toolName, input, worktreePath)
			entries = append(entries, NormalizedEntry{
				Type:     EntryToolUse,
				Content:  generateConciseContent(toolName, input, action, worktreePath),
				ToolName: toolName,
				Action:   &action,
				Metadata: marshalMetadata(value),
			})
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
		SessionID:    sessionID,
		ExecutorType: "opencode",
	}
}
